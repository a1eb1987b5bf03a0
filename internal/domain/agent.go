package domain

import (
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

// AgentType selects which message history and backend endpoint apply.
type AgentType string

const (
	// AgentKnowledge answers informational questions (hours, pricing, features).
	AgentKnowledge AgentType = "knowledge"
	// AgentTechnical troubleshoots issues and may open tickets.
	AgentTechnical AgentType = "technical"
)

// AgentTypes lists every known agent type in display order.
func AgentTypes() []AgentType {
	return []AgentType{AgentKnowledge, AgentTechnical}
}

// Valid reports whether a is one of the known agent types.
func (a AgentType) Valid() bool {
	return a == AgentKnowledge || a == AgentTechnical
}

// DisplayName is the human-facing agent title.
func (a AgentType) DisplayName() string {
	switch a {
	case AgentTechnical:
		return "Technical Support"
	case AgentKnowledge:
		return "Company Info"
	default:
		return string(a)
	}
}

// ParseAgentType parses a case-insensitive agent name.
func ParseAgentType(s string) (AgentType, error) {
	a := AgentType(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown agent type %q: %w", s, errdefs.ErrInvalidArgument)
	}
	return a, nil
}

// Role identifies who authored a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)
