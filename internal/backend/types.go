// Package backend turns chat turns into replies, either by synthesizing
// canned responses locally or by forwarding to a remote support API.
package backend

import (
	"github.com/ashureev/support-hub/internal/domain"
)

// Route is a triage decision.
type Route string

const (
	RouteKnowledge Route = "knowledge"
	RouteTechnical Route = "technical"
	RouteClarify   Route = "clarify"
)

// TriageRequest is the POST /api/triage payload.
type TriageRequest struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

// TriageResponse classifies free text into a route.
type TriageResponse struct {
	Route      Route   `json:"route"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	LeadScore  float64 `json:"lead_score"`
}

// KnowledgeRequest is the POST /api/chat/knowledge payload.
type KnowledgeRequest struct {
	UserID  string         `json:"userId"`
	Text    string         `json:"text"`
	Context map[string]any `json:"context,omitempty"`
}

// KnowledgeResponse is an informational answer with sources.
type KnowledgeResponse struct {
	Reply            string            `json:"reply"`
	Citations        []domain.Citation `json:"citations"`
	SuggestedReplies []string          `json:"suggested_replies"`
	Confidence       float64           `json:"confidence"`
}

// TechnicalRequest is the POST /api/chat/technical payload.
type TechnicalRequest struct {
	UserID      string              `json:"userId"`
	Text        string              `json:"text"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

// TechnicalResponse is a troubleshooting answer that may open a ticket.
type TechnicalResponse struct {
	Reply         string `json:"reply"`
	TicketCreated bool   `json:"ticket_created"`
	TicketID      string `json:"ticket_id,omitempty"`
	NextSteps     string `json:"next_steps"`
}

// LeadRequest is the POST /api/lead payload.
type LeadRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
}

// LeadResponse acknowledges a captured lead.
type LeadResponse struct {
	Success bool   `json:"success"`
	LeadID  string `json:"lead_id"`
}
