package domain

import "time"

// Urgency classifies how quickly a ticket needs attention.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Valid reports whether u is a known urgency level.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// TicketStatusNew is the status assigned to freshly created tickets.
const TicketStatusNew = "New"

// Ticket is a support ticket submitted through the ticket form.
type Ticket struct {
	TicketID    string    `json:"ticketId"`
	FullName    string    `json:"fullName"`
	Email       string    `json:"email"`
	Company     string    `json:"company,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Urgency     Urgency   `json:"urgency"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
