package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/support-hub/internal/store"
)

func newRepo(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "id.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewAnonIDFormat(t *testing.T) {
	t.Parallel()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := NewAnonID()
		if !IsValidAnonID(id) {
			t.Fatalf("invalid anon id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate anon id %q", id)
		}
		seen[id] = true
	}
}

func TestMiddlewareIssuesAndReusesCookie(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)

	var seen []string
	h := Middleware(repo, true, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, UserIDFromContext(r.Context()))
		if UsernameFromContext(r.Context()) == "" {
			t.Error("expected username in context")
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || !IsValidAnonID(cookies[0].Value) {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
	if cookies[0].Secure {
		t.Error("development cookies should not be Secure")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(seen) != 2 || seen[0] != seen[1] || seen[0] != cookies[0].Value {
		t.Fatalf("identity not stable across requests: %v", seen)
	}

	u, err := repo.GetUser(context.Background(), seen[0])
	if err != nil || u == nil {
		t.Fatalf("user not recorded: %v, %v", u, err)
	}
}

func TestMiddlewareReplacesForgedCookie(t *testing.T) {
	t.Parallel()
	var got string
	h := Middleware(nil, false, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "../../etc/passwd"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !IsValidAnonID(got) {
		t.Fatalf("expected a fresh anon id, got %q", got)
	}
	if c := rec.Result().Cookies(); len(c) != 1 || !c[0].Secure {
		t.Fatalf("expected one Secure cookie outside development, got %+v", c)
	}
}

func TestEnsureUserRefreshesLastSeen(t *testing.T) {
	t.Parallel()
	repo := newRepo(t)
	ctx := context.Background()
	id := NewAnonID()

	first := time.Unix(1_700_000_000, 0)
	if err := ensureUser(ctx, repo, id, first); err != nil {
		t.Fatalf("ensureUser failed: %v", err)
	}
	later := first.Add(time.Hour)
	if err := ensureUser(ctx, repo, id, later); err != nil {
		t.Fatalf("ensureUser on existing user failed: %v", err)
	}

	u, _ := repo.GetUser(ctx, id)
	if !u.LastSeenAt.Equal(later) || !u.CreatedAt.Equal(first) {
		t.Fatalf("unexpected timestamps created=%v last_seen=%v", u.CreatedAt, u.LastSeenAt)
	}
	if u.Username != "anon-"+id[len(id)-8:] {
		t.Errorf("unexpected username %q", u.Username)
	}
}

func TestWithUserID(t *testing.T) {
	t.Parallel()
	ctx := WithUserID(context.Background(), "anon_0123456789abcdef0123456789abcdef")
	if UserIDFromContext(ctx) != "anon_0123456789abcdef0123456789abcdef" || UsernameFromContext(ctx) != "anon-89abcdef" {
		t.Fatalf("unexpected context identity %q %q", UserIDFromContext(ctx), UsernameFromContext(ctx))
	}
	if UserIDFromContext(context.Background()) != "" {
		t.Fatal("expected empty user id without identity")
	}
}
