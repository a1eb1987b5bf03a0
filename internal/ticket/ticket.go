// Package ticket creates and looks up support tickets and fans out
// best-effort notifications when a ticket is created.
package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/ashureev/support-hub/internal/domain"
	"github.com/containerd/errdefs"
	"github.com/google/uuid"
)

const notifyTimeout = 5 * time.Second

// Request is the ticket form payload.
type Request struct {
	FullName    string         `json:"fullName"`
	Email       string         `json:"email"`
	Company     string         `json:"company,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Urgency     domain.Urgency `json:"urgency"`
}

// Receipt is returned after a ticket has been created.
type Receipt struct {
	TicketID string `json:"ticketId"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// Normalize trims fields and applies the default urgency.
func (r *Request) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.TrimSpace(r.Email)
	r.Company = strings.TrimSpace(r.Company)
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Urgency = domain.Urgency(strings.ToLower(strings.TrimSpace(string(r.Urgency))))
	if r.Urgency == "" {
		r.Urgency = domain.UrgencyMedium
	}
}

// Validate checks required fields. Errors wrap errdefs.ErrInvalidArgument.
func (r *Request) Validate() error {
	switch {
	case r.FullName == "":
		return fmt.Errorf("fullName is required: %w", errdefs.ErrInvalidArgument)
	case r.Email == "":
		return fmt.Errorf("email is required: %w", errdefs.ErrInvalidArgument)
	case r.Title == "":
		return fmt.Errorf("title is required: %w", errdefs.ErrInvalidArgument)
	case r.Description == "":
		return fmt.Errorf("description is required: %w", errdefs.ErrInvalidArgument)
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return fmt.Errorf("invalid email %q: %w", r.Email, errdefs.ErrInvalidArgument)
	}
	if !r.Urgency.Valid() {
		return fmt.Errorf("invalid urgency %q: %w", r.Urgency, errdefs.ErrInvalidArgument)
	}
	return nil
}

// NewID returns a ticket id of the form TKT-XXXXXXXX.
func NewID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TKT-" + strings.ToUpper(hex[:8])
}

// Build turns a validated request into a new ticket.
func Build(id string, r Request, now time.Time) domain.Ticket {
	return domain.Ticket{
		TicketID:    id,
		FullName:    r.FullName,
		Email:       r.Email,
		Company:     r.Company,
		Title:       r.Title,
		Description: r.Description,
		Urgency:     r.Urgency,
		Status:      domain.TicketStatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Repository is the persistence the ticket service needs.
type Repository interface {
	CreateTicket(ctx context.Context, ticket *domain.Ticket) error
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
}

// Service creates and retrieves tickets.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a ticket service. A nil notifier disables notifications.
func NewService(repo Repository, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = NewFallback(logger)
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create validates, persists and announces a new ticket. Notification
// failures are logged and never fail the creation.
func (s *Service) Create(ctx context.Context, req Request) (*Receipt, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := Build(NewID(), req, s.now())
	if err := s.repo.CreateTicket(ctx, &t); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	s.logger.Info("Ticket created", "ticket_id", t.TicketID, "urgency", t.Urgency)

	Announce(ctx, s.notifier, t, s.logger)

	return &Receipt{
		TicketID: t.TicketID,
		Status:   "created",
		Message:  "Ticket created successfully",
	}, nil
}

// Get returns the ticket or an error wrapping errdefs.ErrNotFound.
func (s *Service) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	t, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, errdefs.ErrNotFound)
	}
	return t, nil
}

// Announce runs notifier for t with its own deadline, detached from ctx
// cancellation. Errors are logged and discarded.
func Announce(ctx context.Context, notifier Notifier, t domain.Ticket, logger *slog.Logger) {
	if notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := notifier.Notify(nctx, t); err != nil {
		logger.Warn("Ticket notification failed", "ticket_id", t.TicketID, "error", err)
	}
}
