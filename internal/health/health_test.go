package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct {
	down atomic.Bool
}

func (p *fakePinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("database is locked")
	}
	return nil
}

func startServer(t *testing.T, db Pinger) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(db, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	})
	return lis.Addr().String()
}

func TestCheckServing(t *testing.T) {
	addr := startServer(t, &fakePinger{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, service := range []string{"", Service} {
		status, err := Check(ctx, addr, service)
		if err != nil {
			t.Fatalf("Check(%q) failed: %v", service, err)
		}
		if status != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %v, want SERVING", service, status)
		}
	}
}

func TestCheckTracksDependency(t *testing.T) {
	db := &fakePinger{}
	addr := startServer(t, db)
	db.down.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		status, err := Check(ctx, addr, "")
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if status == healthpb.HealthCheckResponse_NOT_SERVING {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status still %v after dependency went down", status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestUpdateReportsStatus(t *testing.T) {
	db := &fakePinger{}
	srv := NewServer(db, 0, nil)
	if got := srv.Update(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Update = %v, want SERVING", got)
	}
	db.down.Store(true)
	if got := srv.Update(context.Background()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Update = %v, want NOT_SERVING", got)
	}
}

func TestCheckUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := Check(ctx, addr, ""); err == nil {
		t.Fatal("expected error for closed port")
	}
}
