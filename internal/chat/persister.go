package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/support-hub/internal/domain"
	"github.com/ashureev/support-hub/internal/session"
)

const (
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// persister writes sessions in the background so mutations never block on
// storage. Pending writes are coalesced per agent; only the latest snapshot
// of each agent's list is written.
type persister struct {
	store  *session.Store
	userID string
	logger *slog.Logger

	mu      sync.Mutex
	pending map[domain.AgentType]domain.Session
	order   []domain.AgentType
	closed  bool

	wake     chan struct{}
	flushReq chan chan struct{}
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func newPersister(store *session.Store, userID string, logger *slog.Logger) *persister {
	p := &persister{
		store:    store,
		userID:   userID,
		logger:   logger,
		pending:  make(map[domain.AgentType]domain.Session),
		wake:     make(chan struct{}, 1),
		flushReq: make(chan chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// schedule queues sess for agent. It never blocks.
func (p *persister) schedule(agent domain.AgentType, sess domain.Session) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Debug("Persister closed, dropping write", "user_id", p.userID, "agent", agent)
		return
	}
	if _, queued := p.pending[agent]; !queued {
		p.order = append(p.order, agent)
	}
	p.pending[agent] = sess
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)

	for {
		select {
		case <-p.stop:
			p.drain()
			return
		case <-p.wake:
			p.drain()
		case ack := <-p.flushReq:
			p.drain()
			close(ack)
		}
	}
}

// drain writes everything pending, in the order agents were first queued.
func (p *persister) drain() {
	for {
		p.mu.Lock()
		if len(p.order) == 0 {
			p.mu.Unlock()
			return
		}
		agent := p.order[0]
		p.order = p.order[1:]
		sess := p.pending[agent]
		delete(p.pending, agent)
		p.mu.Unlock()

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		p.store.Save(ctx, p.userID, agent, sess)
		cancel()

		if d := time.Since(start); d > 100*time.Millisecond {
			p.logger.Warn("Slow session write", "user_id", p.userID, "agent", agent, "duration_ms", d.Milliseconds())
		}
	}
}

// flush returns once every write scheduled before the call has been attempted.
func (p *persister) flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case p.flushReq <- ack:
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close drains pending writes and stops the worker.
func (p *persister) close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		remaining := len(p.order)
		p.mu.Unlock()

		close(p.stop)
		select {
		case <-p.done:
		case <-time.After(shutdownTimeout):
			p.logger.Warn("Persister shutdown timeout", "user_id", p.userID, "pending", remaining)
		}
	})
}
