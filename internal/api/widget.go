package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ashureev/support-hub/internal/backend"
	"github.com/ashureev/support-hub/internal/chat"
	"github.com/ashureev/support-hub/internal/domain"
	"github.com/ashureev/support-hub/internal/identity"
	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"
)

// ManagerSource returns the chat manager of a user.
type ManagerSource interface {
	Manager(ctx context.Context, userID string) (*chat.Manager, error)
}

// WidgetHandler exposes the caller's widget state, scoped by the identity
// cookie.
type WidgetHandler struct {
	hub    ManagerSource
	logger *slog.Logger
}

// NewWidgetHandler creates a widget handler.
func NewWidgetHandler(hub ManagerSource, logger *slog.Logger) *WidgetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WidgetHandler{hub: hub, logger: logger}
}

// RegisterRoutes registers the state routes.
func (h *WidgetHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/widget/state", h.State)
	r.Post("/api/widget/switch", h.Switch)
	r.Delete("/api/widget/{agent}/messages", h.Clear)
}

// RegisterTurnRoutes registers the routes that call the backend.
func (h *WidgetHandler) RegisterTurnRoutes(r chi.Router) {
	r.Post("/api/widget/{agent}/messages", h.Send)
	r.Post("/api/widget/lead", h.Lead)
	r.Post("/api/widget/technical/attachments", h.Attach)
	r.Post("/api/widget/technical/ticket", h.RequestTicket)
}

type switchRequest struct {
	Agent string `json:"agent"`
}

type sendRequest struct {
	Text        string              `json:"text"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

type attachRequest struct {
	Attachments []domain.Attachment `json:"attachments"`
}

type leadResponse struct {
	*backend.LeadResponse
	State chat.State `json:"state"`
}

func (h *WidgetHandler) manager(r *http.Request) (*chat.Manager, error) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		return nil, fmt.Errorf("no identity: %w", errdefs.ErrUnauthenticated)
	}
	return h.hub.Manager(r.Context(), userID)
}

// State handles GET /api/widget/state.
func (h *WidgetHandler) State(w http.ResponseWriter, r *http.Request) {
	mgr, err := h.manager(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, mgr.Snapshot())
}

// Switch handles POST /api/widget/switch.
func (h *WidgetHandler) Switch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	agent, err := domain.ParseAgentType(req.Agent)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	mgr, err := h.manager(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if err := mgr.SwitchAgent(agent); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, mgr.Snapshot())
}

// Send handles POST /api/widget/{agent}/messages.
func (h *WidgetHandler) Send(w http.ResponseWriter, r *http.Request) {
	agent, err := domain.ParseAgentType(chi.URLParam(r, "agent"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	mgr, err := h.manager(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	// The turn outlives a client that goes away; its reply still lands in
	// the history and reaches other tabs.
	res, err := mgr.Send(context.WithoutCancel(r.Context()), agent, req.Text, req.Attachments)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Lead handles POST /api/widget/lead.
func (h *WidgetHandler) Lead(w http.ResponseWriter, r *http.Request) {
	var req backend.LeadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	mgr, err := h.manager(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	resp, err := mgr.SubmitLead(context.WithoutCancel(r.Context()), req)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, leadResponse{LeadResponse: resp, State: mgr.Snapshot()})
}

// Attach handles POST /api/widget/technical/attachments.
func (h *WidgetHandler) Attach(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	mgr, err := h.manager(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	res, err := mgr.AttachFiles(context.WithoutCancel(r.Context()), req.Attachments)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// RequestTicket handles POST /api/widget/technical/ticket.
func (h *WidgetHandler) RequestTicket(w http.ResponseWriter, r *http.Request) {
	mgr, err := h.manager(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	res, err := mgr.RequestTicket(context.WithoutCancel(r.Context()))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Clear handles DELETE /api/widget/{agent}/messages.
func (h *WidgetHandler) Clear(w http.ResponseWriter, r *http.Request) {
	agent, err := domain.ParseAgentType(chi.URLParam(r, "agent"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	mgr, err := h.manager(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if err := mgr.ClearMessages(agent); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "cleared", "agent": string(agent)})
}
