package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ashureev/support-hub/internal/domain"
	"github.com/ashureev/support-hub/internal/ticket"
	"github.com/go-chi/chi/v5"
)

// TicketService creates and looks up tickets.
type TicketService interface {
	Create(ctx context.Context, req ticket.Request) (*ticket.Receipt, error)
	Get(ctx context.Context, ticketID string) (*domain.Ticket, error)
}

// TicketHandler serves the ticket form endpoints.
type TicketHandler struct {
	svc    TicketService
	logger *slog.Logger
}

// NewTicketHandler creates a ticket handler.
func NewTicketHandler(svc TicketService, logger *slog.Logger) *TicketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers ticket routes.
func (h *TicketHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/tickets", h.Create)
	r.Get("/api/tickets/{ticketID}", h.Get)
}

// Create handles POST /api/tickets.
func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ticket.Request
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	receipt, err := h.svc.Create(r.Context(), req)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, receipt)
}

// Get handles GET /api/tickets/{ticketID}.
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, t)
}
