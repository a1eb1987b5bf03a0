package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/support-hub/internal/backend"
	"github.com/ashureev/support-hub/internal/identity"
	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"
)

// ChatHandler serves the conversation endpoints the widget calls directly.
type ChatHandler struct {
	backend backend.ConversationBackend
	logger  *slog.Logger
}

// NewChatHandler creates a chat handler answering with b.
func NewChatHandler(b backend.ConversationBackend, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{backend: b, logger: logger}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/triage", h.Triage)
	r.Post("/api/chat/knowledge", h.Knowledge)
	r.Post("/api/chat/technical", h.Technical)
	r.Post("/api/lead", h.Lead)
}

func requireText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is required: %w", errdefs.ErrInvalidArgument)
	}
	return nil
}

// userIDOr fills an empty body user id from the identity cookie.
func userIDOr(r *http.Request, userID string) string {
	if userID != "" {
		return userID
	}
	return identity.UserIDFromContext(r.Context())
}

// Triage handles POST /api/triage.
func (h *ChatHandler) Triage(w http.ResponseWriter, r *http.Request) {
	var req backend.TriageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if err := requireText(req.Text); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	req.UserID = userIDOr(r, req.UserID)

	resp, err := h.backend.Triage(r.Context(), req)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// Knowledge handles POST /api/chat/knowledge.
func (h *ChatHandler) Knowledge(w http.ResponseWriter, r *http.Request) {
	var req backend.KnowledgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if err := requireText(req.Text); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	req.UserID = userIDOr(r, req.UserID)

	resp, err := h.backend.ChatKnowledge(r.Context(), req)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.logger.Info("Knowledge reply", "user_id", req.UserID, "confidence", resp.Confidence)
	JSON(w, http.StatusOK, resp)
}

// Technical handles POST /api/chat/technical.
func (h *ChatHandler) Technical(w http.ResponseWriter, r *http.Request) {
	var req backend.TechnicalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if err := requireText(req.Text); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	req.UserID = userIDOr(r, req.UserID)

	resp, err := h.backend.ChatTechnical(r.Context(), req)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if resp.TicketCreated {
		h.logger.Info("Technical reply opened ticket", "user_id", req.UserID, "ticket_id", resp.TicketID)
	}
	JSON(w, http.StatusOK, resp)
}

// Lead handles POST /api/lead.
func (h *ChatHandler) Lead(w http.ResponseWriter, r *http.Request) {
	var req backend.LeadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	resp, err := h.backend.SubmitLead(r.Context(), req)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.logger.Info("Lead captured", "lead_id", resp.LeadID)
	JSON(w, http.StatusOK, resp)
}
