package backend

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ashureev/support-hub/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// TriageRule routes text containing any keyword.
type TriageRule struct {
	Keywords   []string `yaml:"keywords"`
	Route      Route    `yaml:"route"`
	Intent     string   `yaml:"intent"`
	Confidence float64  `yaml:"confidence"`
	LeadScore  float64  `yaml:"lead_score"`
}

// KnowledgeAnswer is a canned reply for text containing any keyword.
type KnowledgeAnswer struct {
	Keywords         []string          `yaml:"keywords"`
	Reply            string            `yaml:"reply"`
	Citations        []domain.Citation `yaml:"citations"`
	SuggestedReplies []string          `yaml:"suggested_replies"`
	Confidence       float64           `yaml:"confidence"`
}

// Rules drive the mock backend's keyword matching.
type Rules struct {
	Triage struct {
		Rules    []TriageRule `yaml:"rules"`
		Fallback TriageRule   `yaml:"fallback"`
	} `yaml:"triage"`
	Knowledge struct {
		Answers  []KnowledgeAnswer `yaml:"answers"`
		Fallback KnowledgeAnswer   `yaml:"fallback"`
	} `yaml:"knowledge"`
	Technical struct {
		Reply               string   `yaml:"reply"`
		NextSteps           string   `yaml:"next_steps"`
		TicketProbability   float64  `yaml:"ticket_probability"`
		ForceTicketKeywords []string `yaml:"force_ticket_keywords"`
	} `yaml:"technical"`
}

// ParseRules decodes a rules document.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if r.Triage.Fallback.Route == "" {
		return nil, fmt.Errorf("parse rules: triage fallback route is required")
	}
	if r.Knowledge.Fallback.Reply == "" || r.Technical.Reply == "" {
		return nil, fmt.Errorf("parse rules: knowledge fallback and technical reply are required")
	}
	if p := r.Technical.TicketProbability; p < 0 || p > 1 {
		return nil, fmt.Errorf("parse rules: ticket_probability %v out of range", p)
	}
	return &r, nil
}

// DefaultRules returns the embedded rules.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic("backend: embedded rules are invalid: " + err.Error())
	}
	return r
}

func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func (r *Rules) triage(text string) TriageResponse {
	lower := strings.ToLower(text)
	rule := r.Triage.Fallback
	for _, candidate := range r.Triage.Rules {
		if containsAny(lower, candidate.Keywords) {
			rule = candidate
			break
		}
	}
	return TriageResponse{
		Route:      rule.Route,
		Intent:     rule.Intent,
		Confidence: rule.Confidence,
		LeadScore:  rule.LeadScore,
	}
}

func (r *Rules) knowledge(text string) KnowledgeResponse {
	lower := strings.ToLower(text)
	answer := r.Knowledge.Fallback
	for _, candidate := range r.Knowledge.Answers {
		if containsAny(lower, candidate.Keywords) {
			answer = candidate
			break
		}
	}
	return KnowledgeResponse{
		Reply:            answer.Reply,
		Citations:        append([]domain.Citation{}, answer.Citations...),
		SuggestedReplies: append([]string{}, answer.SuggestedReplies...),
		Confidence:       answer.Confidence,
	}
}

func (r *Rules) forcesTicket(text string) bool {
	return containsAny(strings.ToLower(text), r.Technical.ForceTicketKeywords)
}
