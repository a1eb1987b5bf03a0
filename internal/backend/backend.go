package backend

import (
	"context"
	"strings"

	"github.com/ashureev/support-hub/internal/ticket"
)

// ConversationBackend answers chat turns for both agents.
// Implemented by Mock and HTTP.
type ConversationBackend interface {
	// Triage classifies text into a route. Not used by the chat flow itself.
	Triage(ctx context.Context, req TriageRequest) (*TriageResponse, error)

	// ChatKnowledge answers an informational question.
	ChatKnowledge(ctx context.Context, req KnowledgeRequest) (*KnowledgeResponse, error)

	// ChatTechnical answers a troubleshooting message, possibly opening a ticket.
	ChatTechnical(ctx context.Context, req TechnicalRequest) (*TechnicalResponse, error)

	// SubmitLead records sales interest.
	SubmitLead(ctx context.Context, req LeadRequest) (*LeadResponse, error)

	// SubmitTicket files a ticket from the ticket form.
	SubmitTicket(ctx context.Context, req ticket.Request) (*ticket.Receipt, error)
}

// Ensure both implementations satisfy ConversationBackend.
var (
	_ ConversationBackend = (*Mock)(nil)
	_ ConversationBackend = (*HTTP)(nil)
)

var buyingSignalKeywords = []string{
	"price", "pricing", "quote", "buy", "purchase", "demo", "trial", "plan", "cost",
}

// DetectBuyingSignal reports whether text suggests sales interest, which is
// when the widget offers lead capture.
func DetectBuyingSignal(text string) bool {
	if text == "" {
		return false
	}
	t := strings.ToLower(text)
	for _, k := range buyingSignalKeywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}
