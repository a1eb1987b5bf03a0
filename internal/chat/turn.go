package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/support-hub/internal/backend"
	"github.com/ashureev/support-hub/internal/domain"
	"github.com/containerd/errdefs"
)

// FailureText is the system message appended when a turn fails.
const FailureText = "Something went wrong. Please try again."

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = fmt.Errorf("message text is empty: %w", errdefs.ErrInvalidArgument)

// TurnResult is the outcome of one Send.
type TurnResult struct {
	Agent            domain.AgentType  `json:"agent"`
	UserMessage      domain.Message    `json:"user_message"`
	Reply            domain.Message    `json:"reply"`
	Citations        []domain.Citation `json:"citations,omitempty"`
	SuggestedReplies []string          `json:"suggested_replies,omitempty"`
	BuyingSignal     bool              `json:"buying_signal"`
	Failed           bool              `json:"failed"`
}

// Send runs one chat turn: it appends the user message, asks the backend for
// agent's reply and appends it. A backend failure is reported as a system
// message with Failed set; the error itself is only logged.
func (m *Manager) Send(ctx context.Context, agent domain.AgentType, text string, attachments []domain.Attachment) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	if !agent.Valid() {
		return TurnResult{}, fmt.Errorf("send to %q: %w", agent, errdefs.ErrInvalidArgument)
	}
	if m.backend == nil {
		return TurnResult{}, fmt.Errorf("send to %q: no backend configured: %w", agent, errdefs.ErrFailedPrecondition)
	}

	userMsg, err := m.AddMessage(agent, domain.Message{Role: domain.RoleUser, Text: text})
	if err != nil {
		return TurnResult{}, err
	}
	result := TurnResult{
		Agent:        agent,
		UserMessage:  userMsg,
		BuyingSignal: backend.DetectBuyingSignal(text),
	}

	reply, err := m.ask(ctx, agent, text, attachments, &result)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("Chat turn cancelled", "user_id", m.userID, "agent", agent)
		} else {
			m.logger.Warn("Chat turn failed", "user_id", m.userID, "agent", agent, "error", err)
		}
		reply = domain.Message{Role: domain.RoleSystem, Text: FailureText}
		result.Failed = true
	}

	stored, err := m.AddMessage(agent, reply)
	if err != nil {
		return TurnResult{}, err
	}
	result.Reply = stored
	return result, nil
}

func (m *Manager) ask(ctx context.Context, agent domain.AgentType, text string, attachments []domain.Attachment, result *TurnResult) (domain.Message, error) {
	switch agent {
	case domain.AgentTechnical:
		resp, err := m.backend.ChatTechnical(ctx, backend.TechnicalRequest{
			UserID:      m.userID,
			Text:        text,
			Attachments: attachments,
		})
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{
			Role:          domain.RoleAgent,
			Text:          resp.Reply,
			TicketCreated: resp.TicketCreated,
			TicketID:      resp.TicketID,
			NextSteps:     resp.NextSteps,
		}, nil
	default:
		resp, err := m.backend.ChatKnowledge(ctx, backend.KnowledgeRequest{
			UserID: m.userID,
			Text:   text,
		})
		if err != nil {
			return domain.Message{}, err
		}
		result.Citations = resp.Citations
		result.SuggestedReplies = resp.SuggestedReplies
		confidence := resp.Confidence
		return domain.Message{
			Role:       domain.RoleAgent,
			Text:       resp.Reply,
			Confidence: &confidence,
		}, nil
	}
}
