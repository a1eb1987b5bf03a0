package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/support-hub/internal/ticket"
	"github.com/containerd/errdefs"
	"github.com/containerd/errdefs/pkg/errhttp"
)

// Remote defaults.
const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 15 * time.Second

	maxErrorBody = 4 << 10
)

// HTTP forwards chat turns to a remote support API.
type HTTP struct {
	baseURL  string
	client   *http.Client
	notifier ticket.Notifier
	logger   *slog.Logger
}

// HTTPOption configures an HTTP backend.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the underlying client. Its timeout is kept as is.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// WithTicketNotifier announces tickets after a successful submission.
func WithTicketNotifier(n ticket.Notifier) HTTPOption {
	return func(h *HTTP) { h.notifier = n }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTP) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHTTP creates a remote backend rooted at baseURL with a fixed timeout
// per request.
func NewHTTP(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTP {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	h := &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// post sends in as JSON and decodes the response into out.
func (h *HTTP) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w: %w", path, errdefs.ErrUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			h.logger.Debug("failed to close response body", "path", path, "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("POST %s: status %d: %s: %w",
			path, resp.StatusCode, strings.TrimSpace(string(snippet)), errhttp.ToNative(resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Triage forwards to POST /api/triage.
func (h *HTTP) Triage(ctx context.Context, req TriageRequest) (*TriageResponse, error) {
	var out TriageResponse
	if err := h.post(ctx, "/api/triage", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatKnowledge forwards to POST /api/chat/knowledge.
func (h *HTTP) ChatKnowledge(ctx context.Context, req KnowledgeRequest) (*KnowledgeResponse, error) {
	if req.Context == nil {
		req.Context = map[string]any{}
	}
	var out KnowledgeResponse
	if err := h.post(ctx, "/api/chat/knowledge", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatTechnical forwards to POST /api/chat/technical.
func (h *HTTP) ChatTechnical(ctx context.Context, req TechnicalRequest) (*TechnicalResponse, error) {
	var out TechnicalResponse
	if err := h.post(ctx, "/api/chat/technical", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitLead forwards to POST /api/lead.
func (h *HTTP) SubmitLead(ctx context.Context, req LeadRequest) (*LeadResponse, error) {
	var out LeadResponse
	if err := h.post(ctx, "/api/lead", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitTicket forwards to POST /api/tickets, then notifies best-effort.
// A missing ticket id in the response is synthesized locally.
func (h *HTTP) SubmitTicket(ctx context.Context, req ticket.Request) (*ticket.Receipt, error) {
	req.Normalize()
	var out ticket.Receipt
	if err := h.post(ctx, "/api/tickets", req, &out); err != nil {
		return nil, err
	}
	if out.TicketID == "" {
		out.TicketID = ticket.NewID()
	}
	ticket.Announce(ctx, h.notifier, ticket.Build(out.TicketID, req, time.Now().UTC()), h.logger)
	return &out, nil
}
