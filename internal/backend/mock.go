package backend

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ashureev/support-hub/internal/ticket"
)

// Default simulated latency bounds.
const (
	DefaultMinDelay = 500 * time.Millisecond
	DefaultMaxDelay = 1200 * time.Millisecond
)

// Mock synthesizes replies locally from keyword rules after a randomized
// delay. With a seeded source and zero latency it is fully deterministic.
type Mock struct {
	rules             *Rules
	minDelay          time.Duration
	maxDelay          time.Duration
	ticketProbability float64
	now               func() time.Time
	notifier          ticket.Notifier
	logger            *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// MockOption configures a Mock.
type MockOption func(*Mock)

// WithLatency sets the simulated latency range. Zero disables waiting.
func WithLatency(minDelay, maxDelay time.Duration) MockOption {
	return func(m *Mock) {
		if minDelay < 0 {
			minDelay = 0
		}
		if maxDelay < minDelay {
			maxDelay = minDelay
		}
		m.minDelay, m.maxDelay = minDelay, maxDelay
	}
}

// WithRand sets the randomness source.
func WithRand(r *rand.Rand) MockOption {
	return func(m *Mock) { m.rng = r }
}

// WithClock sets the time source used for ticket ids.
func WithClock(now func() time.Time) MockOption {
	return func(m *Mock) { m.now = now }
}

// WithTicketProbability overrides the baseline ticket creation probability.
func WithTicketProbability(p float64) MockOption {
	return func(m *Mock) {
		if p >= 0 && p <= 1 {
			m.ticketProbability = p
		}
	}
}

// WithRules replaces the embedded keyword rules.
func WithRules(r *Rules) MockOption {
	return func(m *Mock) {
		if r != nil {
			m.rules = r
		}
	}
}

// WithMockNotifier announces tickets submitted through SubmitTicket.
func WithMockNotifier(n ticket.Notifier) MockOption {
	return func(m *Mock) { m.notifier = n }
}

// WithMockLogger sets the logger.
func WithMockLogger(l *slog.Logger) MockOption {
	return func(m *Mock) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMock creates a mock backend using the embedded rules.
func NewMock(opts ...MockOption) *Mock {
	rules := DefaultRules()
	m := &Mock{
		rules:             rules,
		minDelay:          DefaultMinDelay,
		maxDelay:          DefaultMaxDelay,
		ticketProbability: rules.Technical.TicketProbability,
		now:               time.Now,
		logger:            slog.Default(),
		rng:               rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mock) intN(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.IntN(n)
}

func (m *Mock) float64() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

// wait simulates network latency. It returns early if ctx ends.
func (m *Mock) wait(ctx context.Context) error {
	if m.maxDelay <= 0 {
		return ctx.Err()
	}
	d := m.minDelay
	if spread := m.maxDelay - m.minDelay; spread > 0 {
		d += time.Duration(m.intN(int(spread/time.Millisecond)+1)) * time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Triage classifies text by keyword.
func (m *Mock) Triage(ctx context.Context, req TriageRequest) (*TriageResponse, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	resp := m.rules.triage(req.Text)
	return &resp, nil
}

// ChatKnowledge returns the canned answer matching text.
func (m *Mock) ChatKnowledge(ctx context.Context, req KnowledgeRequest) (*KnowledgeResponse, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	resp := m.rules.knowledge(req.Text)
	return &resp, nil
}

// ChatTechnical returns the canned troubleshooting reply. A ticket is opened
// at the baseline probability, or always when the text reports a failure.
func (m *Mock) ChatTechnical(ctx context.Context, req TechnicalRequest) (*TechnicalResponse, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	resp := &TechnicalResponse{
		Reply:     m.rules.Technical.Reply,
		NextSteps: m.rules.Technical.NextSteps,
	}
	if m.float64() < m.ticketProbability || m.rules.forcesTicket(req.Text) {
		resp.TicketCreated = true
		resp.TicketID = fmt.Sprintf("TCK-%s-%d", m.now().UTC().Format("20060102"), 1000+m.intN(9000))
	}
	return resp, nil
}

// SubmitLead always succeeds.
func (m *Mock) SubmitLead(ctx context.Context, _ LeadRequest) (*LeadResponse, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return &LeadResponse{Success: true, LeadID: fmt.Sprintf("LEAD-%d", m.intN(1_000_000))}, nil
}

// SubmitTicket validates the form and issues a ticket id without storing it.
func (m *Mock) SubmitTicket(ctx context.Context, req ticket.Request) (*ticket.Receipt, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	id := ticket.NewID()
	ticket.Announce(ctx, m.notifier, ticket.Build(id, req, m.now().UTC()), m.logger)
	return &ticket.Receipt{TicketID: id, Status: "created", Message: "Ticket created successfully"}, nil
}
