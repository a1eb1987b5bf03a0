package domain

// Message is a single immutable chat entry.
// Agent-specific fields are only set on agent replies.
type Message struct {
	ID            int64    `json:"id"`
	Role          Role     `json:"role"`
	Text          string   `json:"text"`
	Confidence    *float64 `json:"confidence,omitempty"`
	TicketCreated bool     `json:"ticket_created,omitempty"`
	TicketID      string   `json:"ticket_id,omitempty"`
	NextSteps     string   `json:"next_steps,omitempty"`
}

// Session is the ordered message history for one (user, agent type) pair.
type Session struct {
	Messages []Message `json:"messages"`
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (s Session) Clone() Session {
	out := Session{Messages: make([]Message, len(s.Messages))}
	for i, m := range s.Messages {
		if m.Confidence != nil {
			c := *m.Confidence
			m.Confidence = &c
		}
		out.Messages[i] = m
	}
	return out
}

// Citation points at a source document backing a knowledge reply.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Attachment describes a file the user attached to a technical request.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}
