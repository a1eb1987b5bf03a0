package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/support-hub/internal/domain"
	"github.com/containerd/errdefs"
)

type fakeRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	err     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tickets: make(map[string]*domain.Ticket)}
}

func (f *fakeRepo) CreateTicket(_ context.Context, t *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	copy := *t
	f.tickets[t.TicketID] = &copy
	return nil
}

func (f *fakeRepo) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tickets[id]
	if t == nil {
		return nil, nil
	}
	copy := *t
	return &copy, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	seen  []domain.Ticket
	err   error
	ctxOK bool
}

func (r *recordingNotifier) Notify(ctx context.Context, t domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, t)
	r.ctxOK = ctx.Err() == nil
	return r.err
}

func (r *recordingNotifier) Close() error { return nil }

func validRequest() Request {
	return Request{
		FullName:    " Ada Lovelace ",
		Email:       "ada@example.com",
		Title:       "VPN keeps dropping",
		Description: "It disconnects every hour",
	}
}

var ticketIDPattern = regexp.MustCompile(`^TKT-[0-9A-F]{8}$`)

func TestNewIDFormat(t *testing.T) {
	t.Parallel()
	for i := 0; i < 20; i++ {
		if id := NewID(); !ticketIDPattern.MatchString(id) {
			t.Fatalf("unexpected ticket id %q", id)
		}
	}
}

func TestCreatePersistsAndNotifies(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	n := &recordingNotifier{}
	svc := NewService(repo, n, slog.Default())

	receipt, err := svc.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !ticketIDPattern.MatchString(receipt.TicketID) || receipt.Status != "created" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	got, err := svc.Get(context.Background(), receipt.TicketID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.FullName != "Ada Lovelace" {
		t.Errorf("expected trimmed name, got %q", got.FullName)
	}
	if got.Urgency != domain.UrgencyMedium {
		t.Errorf("expected default urgency medium, got %q", got.Urgency)
	}
	if got.Status != domain.TicketStatusNew || got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Errorf("unexpected ticket metadata %+v", got)
	}

	if len(n.seen) != 1 || n.seen[0].TicketID != receipt.TicketID {
		t.Fatalf("expected one notification for %s, got %+v", receipt.TicketID, n.seen)
	}
}

func TestCreateSucceedsWhenNotifierFails(t *testing.T) {
	t.Parallel()
	n := &recordingNotifier{err: errors.New("webhook down")}
	svc := NewService(newFakeRepo(), n, slog.Default())

	// A cancelled request context must not cancel the notification.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Create(ctx, validRequest()); err != nil {
		t.Fatalf("Create should ignore notifier errors, got %v", err)
	}
	if len(n.seen) != 1 || !n.ctxOK {
		t.Fatalf("expected notification attempt with live context, seen=%d ctxOK=%v", len(n.seen), n.ctxOK)
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	svc := NewService(newFakeRepo(), nil, nil)

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing name", func(r *Request) { r.FullName = "  " }},
		{"missing email", func(r *Request) { r.Email = "" }},
		{"bad email", func(r *Request) { r.Email = "not-an-email" }},
		{"missing title", func(r *Request) { r.Title = "" }},
		{"missing description", func(r *Request) { r.Description = "" }},
		{"bad urgency", func(r *Request) { r.Urgency = "urgent" }},
	}
	for _, tt := range tests {
		req := validRequest()
		tt.mutate(&req)
		if _, err := svc.Create(context.Background(), req); !errdefs.IsInvalidArgument(err) {
			t.Errorf("%s: expected invalid argument, got %v", tt.name, err)
		}
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	t.Parallel()
	svc := NewService(newFakeRepo(), nil, nil)
	if _, err := svc.Get(context.Background(), "TKT-00000000"); !errdefs.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWebhookPostsPayload(t *testing.T) {
	t.Parallel()

	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tk := Build("TKT-1234ABCD", Request{
		FullName: "Ada", Email: "ada@example.com", Company: "Engines",
		Title: "Broken", Description: "It stopped", Urgency: domain.UrgencyHigh,
	}, time.Now())
	if err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), tk); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if got.TicketID != "TKT-1234ABCD" || got.UserInfo.Company != "Engines" || got.TicketDetails.Urgency != domain.UrgencyHigh {
		t.Fatalf("unexpected webhook payload %+v", got)
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), domain.Ticket{TicketID: "TKT-X"})
	if !errdefs.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	t.Parallel()
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("boom")}
	m := Multi{bad, ok}

	if err := m.Notify(context.Background(), domain.Ticket{TicketID: "TKT-X"}); err == nil {
		t.Fatal("expected joined error")
	}
	if len(ok.seen) != 1 {
		t.Fatal("later notifiers must still run after a failure")
	}
}

func TestNewEnvelope(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	env := NewEnvelope(domain.Ticket{TicketID: "TKT-X"}, "support-hub", now)
	if env.Meta.ID == "" || env.Meta.Type != EventTypeTicketCreated || env.Meta.Producer != "support-hub" {
		t.Fatalf("unexpected meta %+v", env.Meta)
	}
	if env.Meta.Time.Location() != time.UTC {
		t.Errorf("expected UTC event time, got %v", env.Meta.Time.Location())
	}
}
