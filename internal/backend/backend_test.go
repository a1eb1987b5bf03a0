package backend

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/support-hub/internal/domain"
	"github.com/ashureev/support-hub/internal/ticket"
	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"
)

func newTestMock(opts ...MockOption) *Mock {
	base := []MockOption{
		WithLatency(0, 0),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithClock(func() time.Time { return time.Date(2025, 8, 9, 10, 0, 0, 0, time.UTC) }),
	}
	return NewMock(append(base, opts...)...)
}

func TestMockKnowledgeHoursScenario(t *testing.T) {
	t.Parallel()
	m := newTestMock()

	resp, err := m.ChatKnowledge(context.Background(), KnowledgeRequest{UserID: "u1", Text: "What are your hours?"})
	if err != nil {
		t.Fatalf("ChatKnowledge failed: %v", err)
	}
	if resp.Reply != "Our business hours are Monday–Friday, 9am–6pm (EST)." {
		t.Errorf("unexpected reply %q", resp.Reply)
	}
	if len(resp.SuggestedReplies) != 2 {
		t.Errorf("expected two suggested replies, got %v", resp.SuggestedReplies)
	}
	want := []domain.Citation{{Title: "Support Hours", URL: "https://example.com/docs/hours"}}
	if diff := cmp.Diff(want, resp.Citations); diff != "" {
		t.Errorf("citations mismatch (-want +got):\n%s", diff)
	}
}

func TestMockKnowledgeRouting(t *testing.T) {
	t.Parallel()
	m := newTestMock()

	tests := []struct {
		text     string
		contains string
		conf     float64
	}{
		{"What is the PRICE?", "Pricing starts at $49/month", 0.88},
		{"how much does it cost", "Pricing starts at $49/month", 0.88},
		{"tell me about features", "I can help with features", 0.75},
	}
	for _, tt := range tests {
		resp, err := m.ChatKnowledge(context.Background(), KnowledgeRequest{Text: tt.text})
		if err != nil {
			t.Fatalf("ChatKnowledge(%q) failed: %v", tt.text, err)
		}
		if !regexp.MustCompile(regexp.QuoteMeta(tt.contains)).MatchString(resp.Reply) {
			t.Errorf("ChatKnowledge(%q) reply = %q, want it to contain %q", tt.text, resp.Reply, tt.contains)
		}
		if resp.Confidence != tt.conf {
			t.Errorf("ChatKnowledge(%q) confidence = %v, want %v", tt.text, resp.Confidence, tt.conf)
		}
		if resp.Citations == nil {
			t.Errorf("ChatKnowledge(%q) citations should be an empty list, not nil", tt.text)
		}
	}
}

func TestMockKnowledgeResponsesDoNotAliasRules(t *testing.T) {
	t.Parallel()
	m := newTestMock()
	first, _ := m.ChatKnowledge(context.Background(), KnowledgeRequest{Text: "hours"})
	first.SuggestedReplies[0] = "mutated"
	second, _ := m.ChatKnowledge(context.Background(), KnowledgeRequest{Text: "hours"})
	if second.SuggestedReplies[0] == "mutated" {
		t.Fatal("responses share backing arrays with the rules")
	}
}

func TestMockTriage(t *testing.T) {
	t.Parallel()
	m := newTestMock()

	tests := []struct {
		text  string
		route Route
		lead  float64
	}{
		{"price for teams", RouteKnowledge, 0.6},
		{"can I get a demo", RouteKnowledge, 0.6},
		{"the app crashed", RouteTechnical, 0.2},
		{"it keeps disconnecting", RouteTechnical, 0.2},
		{"hello there", RouteClarify, 0.3},
	}
	for _, tt := range tests {
		resp, err := m.Triage(context.Background(), TriageRequest{UserID: "u1", Text: tt.text})
		if err != nil {
			t.Fatalf("Triage(%q) failed: %v", tt.text, err)
		}
		if resp.Route != tt.route || resp.LeadScore != tt.lead {
			t.Errorf("Triage(%q) = %+v, want route %s lead %v", tt.text, resp, tt.route, tt.lead)
		}
	}
}

var mockTicketID = regexp.MustCompile(`^TCK-20250809-[1-9][0-9]{3}$`)

func TestMockTechnicalForcedTickets(t *testing.T) {
	t.Parallel()
	m := newTestMock(WithTicketProbability(0))

	for _, text := range []string{"my VPN keeps DISCONNECTing", "sync stopped overnight"} {
		resp, err := m.ChatTechnical(context.Background(), TechnicalRequest{Text: text})
		if err != nil {
			t.Fatalf("ChatTechnical(%q) failed: %v", text, err)
		}
		if !resp.TicketCreated {
			t.Errorf("ChatTechnical(%q) should force a ticket", text)
		}
		if !mockTicketID.MatchString(resp.TicketID) {
			t.Errorf("unexpected ticket id %q", resp.TicketID)
		}
	}

	resp, err := m.ChatTechnical(context.Background(), TechnicalRequest{Text: "printer is slow"})
	if err != nil {
		t.Fatalf("ChatTechnical failed: %v", err)
	}
	if resp.TicketCreated || resp.TicketID != "" {
		t.Errorf("expected no ticket at zero probability, got %+v", resp)
	}
	if resp.NextSteps == "" || resp.Reply == "" {
		t.Errorf("expected reply and next steps, got %+v", resp)
	}
}

func TestMockTicketIDUsesUTCDate(t *testing.T) {
	t.Parallel()
	// 23:30 in New York on the 9th is already the 10th in UTC.
	evening := time.Date(2025, 8, 9, 23, 30, 0, 0, time.FixedZone("EST", -5*60*60))
	m := newTestMock(WithTicketProbability(1), WithClock(func() time.Time { return evening }))

	resp, err := m.ChatTechnical(context.Background(), TechnicalRequest{Text: "slow"})
	if err != nil {
		t.Fatalf("ChatTechnical failed: %v", err)
	}
	if !regexp.MustCompile(`^TCK-20250810-[1-9][0-9]{3}$`).MatchString(resp.TicketID) {
		t.Errorf("ticket id %q should carry the UTC date", resp.TicketID)
	}
}

func TestMockTechnicalProbability(t *testing.T) {
	t.Parallel()
	always := newTestMock(WithTicketProbability(1))
	resp, err := always.ChatTechnical(context.Background(), TechnicalRequest{Text: "slow"})
	if err != nil || !resp.TicketCreated {
		t.Fatalf("expected ticket at probability 1, got %+v, %v", resp, err)
	}

	baseline := newTestMock()
	created := 0
	const n = 2000
	for i := 0; i < n; i++ {
		resp, _ := baseline.ChatTechnical(context.Background(), TechnicalRequest{Text: "slow"})
		if resp.TicketCreated {
			created++
		}
	}
	if ratio := float64(created) / n; ratio < 0.33 || ratio > 0.47 {
		t.Errorf("baseline ticket ratio %.3f, want about 0.4", ratio)
	}
}

func TestMockLeadAndTicket(t *testing.T) {
	t.Parallel()
	m := newTestMock()

	lead, err := m.SubmitLead(context.Background(), LeadRequest{Name: "Ada", Email: "ada@example.com"})
	if err != nil || !lead.Success || !regexp.MustCompile(`^LEAD-\d+$`).MatchString(lead.LeadID) {
		t.Fatalf("unexpected lead response %+v, %v", lead, err)
	}

	receipt, err := m.SubmitTicket(context.Background(), ticket.Request{
		FullName: "Ada", Email: "ada@example.com", Title: "Down", Description: "It stopped",
	})
	if err != nil {
		t.Fatalf("SubmitTicket failed: %v", err)
	}
	if receipt.Status != "created" || receipt.TicketID == "" {
		t.Errorf("unexpected receipt %+v", receipt)
	}

	if _, err := m.SubmitTicket(context.Background(), ticket.Request{}); !errdefs.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for empty form, got %v", err)
	}
}

func TestMockLatencyHonorsContext(t *testing.T) {
	t.Parallel()
	m := NewMock(WithLatency(time.Hour, time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.ChatKnowledge(ctx, KnowledgeRequest{Text: "hours"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("latency wait ignored context cancellation")
	}
}

func TestMockLatencyWithinBounds(t *testing.T) {
	t.Parallel()
	m := NewMock(WithLatency(10*time.Millisecond, 30*time.Millisecond))
	start := time.Now()
	if _, err := m.Triage(context.Background(), TriageRequest{Text: "x"}); err != nil {
		t.Fatalf("Triage failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("returned after %v, before the minimum delay", elapsed)
	}
}

func TestParseRulesRejectsIncomplete(t *testing.T) {
	t.Parallel()
	if _, err := ParseRules([]byte("triage: {}")); err == nil {
		t.Fatal("expected error for rules without fallbacks")
	}
	if _, err := ParseRules([]byte(":::")); err == nil {
		t.Fatal("expected YAML error")
	}
}

func TestDetectBuyingSignal(t *testing.T) {
	t.Parallel()
	for text, want := range map[string]bool{
		"Can I get a QUOTE?":     true,
		"start a free trial":     true,
		"my screen is blank":     false,
		"":                       false,
		"what plans do you have": true,
	} {
		if got := DetectBuyingSignal(text); got != want {
			t.Errorf("DetectBuyingSignal(%q) = %v, want %v", text, got, want)
		}
	}
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, t domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, t.TicketID)
	return r.err
}

func (r *recordingNotifier) Close() error { return nil }

func TestHTTPBackendForwardsRequests(t *testing.T) {
	t.Parallel()

	var gotPaths []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPaths = append(gotPaths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/chat/knowledge":
			var req KnowledgeRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(KnowledgeResponse{Reply: "echo:" + req.Text, Confidence: 0.5})
		case "/api/chat/technical":
			_ = json.NewEncoder(w).Encode(TechnicalResponse{Reply: "ok", TicketCreated: true, TicketID: "TCK-1"})
		case "/api/triage":
			_ = json.NewEncoder(w).Encode(TriageResponse{Route: RouteTechnical})
		case "/api/lead":
			_ = json.NewEncoder(w).Encode(LeadResponse{Success: true, LeadID: "LEAD-1"})
		case "/api/tickets":
			// No ticket id: the client synthesizes one.
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "created"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	notifier := &recordingNotifier{err: errors.New("webhook offline")}
	h := NewHTTP(srv.URL+"/", time.Second, WithTicketNotifier(notifier))
	ctx := context.Background()

	k, err := h.ChatKnowledge(ctx, KnowledgeRequest{UserID: "u1", Text: "hi"})
	if err != nil || k.Reply != "echo:hi" {
		t.Fatalf("ChatKnowledge = %+v, %v", k, err)
	}
	tech, err := h.ChatTechnical(ctx, TechnicalRequest{Text: "down"})
	if err != nil || tech.TicketID != "TCK-1" {
		t.Fatalf("ChatTechnical = %+v, %v", tech, err)
	}
	tr, err := h.Triage(ctx, TriageRequest{Text: "x"})
	if err != nil || tr.Route != RouteTechnical {
		t.Fatalf("Triage = %+v, %v", tr, err)
	}
	lead, err := h.SubmitLead(ctx, LeadRequest{Name: "Ada"})
	if err != nil || lead.LeadID != "LEAD-1" {
		t.Fatalf("SubmitLead = %+v, %v", lead, err)
	}

	receipt, err := h.SubmitTicket(ctx, ticket.Request{FullName: "Ada", Email: "ada@example.com", Title: "t", Description: "d"})
	if err != nil {
		t.Fatalf("SubmitTicket should ignore notifier failures, got %v", err)
	}
	if receipt.TicketID == "" {
		t.Fatal("expected synthesized ticket id")
	}
	if len(notifier.ids) != 1 || notifier.ids[0] != receipt.TicketID {
		t.Fatalf("expected one notification for %s, got %v", receipt.TicketID, notifier.ids)
	}

	want := []string{"/api/chat/knowledge", "/api/chat/technical", "/api/triage", "/api/lead", "/api/tickets"}
	if diff := cmp.Diff(want, gotPaths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPBackendClassifiesFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/lead" {
			http.Error(w, `{"error":"bad"}`, http.StatusBadRequest)
			return
		}
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))

	h := NewHTTP(srv.URL, time.Second)
	if _, err := h.ChatKnowledge(context.Background(), KnowledgeRequest{Text: "x"}); !errdefs.IsUnavailable(err) {
		t.Errorf("expected unavailable for 503, got %v", err)
	}
	if _, err := h.SubmitLead(context.Background(), LeadRequest{}); !errdefs.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for 400, got %v", err)
	}

	srv.Close()
	if _, err := h.Triage(context.Background(), TriageRequest{Text: "x"}); !errdefs.IsUnavailable(err) {
		t.Errorf("expected unavailable when the server is gone, got %v", err)
	}
}

func TestHTTPBackendTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	h := NewHTTP(srv.URL, 50*time.Millisecond)
	if _, err := h.ChatTechnical(context.Background(), TechnicalRequest{Text: "x"}); err == nil {
		t.Fatal("expected timeout error")
	}
}
