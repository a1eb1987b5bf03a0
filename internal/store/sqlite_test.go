package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/support-hub/internal/domain"
	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "hub.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKVRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if _, ok, err := s.GetValue(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := s.PutValue(ctx, "k", "v1"); err != nil {
		t.Fatalf("PutValue failed: %v", err)
	}
	if err := s.PutValue(ctx, "k", "v2"); err != nil {
		t.Fatalf("PutValue overwrite failed: %v", err)
	}
	got, ok, err := s.GetValue(ctx, "k")
	if err != nil || !ok || got != "v2" {
		t.Fatalf("GetValue = %q, %v, %v; want v2", got, ok, err)
	}

	if err := s.DeleteValue(ctx, "k"); err != nil {
		t.Fatalf("DeleteValue failed: %v", err)
	}
	if err := s.DeleteValue(ctx, "k"); err != nil {
		t.Fatalf("deleting a missing key should not fail: %v", err)
	}
	if _, ok, _ := s.GetValue(ctx, "k"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestUserUpsertAndLastSeen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if u, err := s.GetUser(ctx, "anon_x"); err != nil || u != nil {
		t.Fatalf("expected nil user, got %v, %v", u, err)
	}

	now := time.Unix(1_700_000_000, 0)
	if err := s.UpsertUser(ctx, &domain.User{
		UserID: "anon_x", Username: "anon-x", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	later := now.Add(time.Hour)
	if err := s.UpdateLastSeen(ctx, "anon_x", later); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}
	u, err := s.GetUser(ctx, "anon_x")
	if err != nil || u == nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !u.LastSeenAt.Equal(later) {
		t.Errorf("LastSeenAt = %v, want %v", u.LastSeenAt, later)
	}

	if err := s.UpdateLastSeen(ctx, "nobody", later); !errdefs.IsNotFound(err) {
		t.Errorf("expected not found for unknown user, got %v", err)
	}
}

func TestTicketCreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	want := &domain.Ticket{
		TicketID:    "TKT-ABCDEF12",
		FullName:    "Ada Lovelace",
		Email:       "ada@example.com",
		Title:       "VPN drops",
		Description: "Connection stopped after update",
		Urgency:     domain.UrgencyHigh,
		Status:      domain.TicketStatusNew,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if err := s.CreateTicket(ctx, want); err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}

	got, err := s.GetTicket(ctx, want.TicketID)
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ticket mismatch (-want +got):\n%s", diff)
	}

	if err := s.CreateTicket(ctx, want); !errdefs.IsAlreadyExists(err) {
		t.Errorf("expected already exists on duplicate id, got %v", err)
	}

	missing, err := s.GetTicket(ctx, "TKT-NOPE")
	if err != nil || missing != nil {
		t.Errorf("expected nil ticket, got %v, %v", missing, err)
	}
}
