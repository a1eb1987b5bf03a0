package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/support-hub/internal/domain"
	"github.com/containerd/errdefs/pkg/errhttp"
)

// Notifier announces newly created tickets to an external system.
type Notifier interface {
	Notify(ctx context.Context, t domain.Ticket) error
	Close() error
}

// webhookPayload mirrors the shape consumed by the ticket workflow webhook.
type webhookPayload struct {
	TicketID string `json:"ticketId"`
	UserInfo struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
		Company  string `json:"company"`
	} `json:"userInfo"`
	TicketDetails struct {
		Title       string         `json:"title"`
		Description string         `json:"description"`
		Urgency     domain.Urgency `json:"urgency"`
	} `json:"ticketDetails"`
}

// Webhook posts ticket details as JSON to a fixed URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = notifyTimeout
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

// Notify posts the ticket to the webhook.
func (w *Webhook) Notify(ctx context.Context, t domain.Ticket) error {
	var p webhookPayload
	p.TicketID = t.TicketID
	p.UserInfo.FullName = t.FullName
	p.UserInfo.Email = t.Email
	p.UserInfo.Company = t.Company
	p.TicketDetails.Title = t.Title
	p.TicketDetails.Description = t.Description
	p.TicketDetails.Urgency = t.Urgency

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d: %w", resp.StatusCode, errhttp.ToNative(resp.StatusCode))
	}
	return nil
}

// Close is a no-op.
func (w *Webhook) Close() error { return nil }

// Fallback logs and skips notifications. Used when nothing is configured.
type Fallback struct {
	log *slog.Logger
}

// NewFallback creates a notifier that only logs.
func NewFallback(logger *slog.Logger) *Fallback {
	return &Fallback{log: logger}
}

// Notify logs the skipped notification.
func (f *Fallback) Notify(_ context.Context, t domain.Ticket) error {
	f.log.Debug("No ticket notifier configured, skipped", "ticket_id", t.TicketID)
	return nil
}

// Close is a no-op.
func (f *Fallback) Close() error { return nil }

// Multi notifies every wrapped notifier and joins their errors.
type Multi []Notifier

// Notify calls every notifier even if an earlier one fails.
func (m Multi) Notify(ctx context.Context, t domain.Ticket) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every notifier.
func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
