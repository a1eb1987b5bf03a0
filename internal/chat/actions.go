package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/support-hub/internal/backend"
	"github.com/ashureev/support-hub/internal/domain"
	"github.com/containerd/errdefs"
)

// Texts used by the widget's quick actions.
const (
	LeadThanksText        = "Thanks! A specialist will reach out shortly."
	AttachmentsReviewText = "Please review the attached files."
	CreateTicketText      = "Create ticket, please."
)

// AttachmentsAddedText is the system note recorded before attachments are sent.
func AttachmentsAddedText(n int) string {
	return fmt.Sprintf("%d attachment(s) added.", n)
}

// SubmitLead forwards the lead form to the backend. When the lead is
// accepted a thank-you note is added to the knowledge history. Unlike Send,
// backend errors are returned to the caller.
func (m *Manager) SubmitLead(ctx context.Context, req backend.LeadRequest) (*backend.LeadResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Company = strings.TrimSpace(req.Company)
	if req.Name == "" || req.Email == "" {
		return nil, fmt.Errorf("lead needs a name and an email: %w", errdefs.ErrInvalidArgument)
	}
	if m.backend == nil {
		return nil, fmt.Errorf("submit lead: no backend configured: %w", errdefs.ErrFailedPrecondition)
	}

	resp, err := m.backend.SubmitLead(ctx, req)
	if err != nil {
		m.logger.Warn("Lead submission failed", "user_id", m.userID, "error", err)
		return nil, err
	}
	if resp.Success {
		if _, err := m.AddMessage(domain.AgentKnowledge, domain.Message{Role: domain.RoleSystem, Text: LeadThanksText}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// AttachFiles records a note about the files in the technical history and
// asks the technical agent to review them.
func (m *Manager) AttachFiles(ctx context.Context, attachments []domain.Attachment) (TurnResult, error) {
	if len(attachments) == 0 {
		return TurnResult{}, fmt.Errorf("no attachments: %w", errdefs.ErrInvalidArgument)
	}
	if m.backend == nil {
		return TurnResult{}, fmt.Errorf("attach files: no backend configured: %w", errdefs.ErrFailedPrecondition)
	}

	note := domain.Message{Role: domain.RoleSystem, Text: AttachmentsAddedText(len(attachments))}
	if _, err := m.AddMessage(domain.AgentTechnical, note); err != nil {
		return TurnResult{}, err
	}
	return m.Send(ctx, domain.AgentTechnical, AttachmentsReviewText, attachments)
}

// RequestTicket asks the technical agent to open a ticket.
func (m *Manager) RequestTicket(ctx context.Context) (TurnResult, error) {
	return m.Send(ctx, domain.AgentTechnical, CreateTicketText, nil)
}
