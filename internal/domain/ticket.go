package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets. Stored as a small
// integer; 1 means open, which drives the is_open flag on broadcast messages.
type TicketStatus int16

const (
	TicketStatusOpen       TicketStatus = 1
	TicketStatusInProgress TicketStatus = 2
	TicketStatusClosed     TicketStatus = 3
)

// IsOpen reports whether the ticket still accepts customer traffic.
func (s TicketStatus) IsOpen() bool {
	return s == TicketStatusOpen
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID              int64
	CompanyID       int64
	CreatedByID     int64
	AssignedAgentID *int64
	Subject         string
	Description     string
	Status          TicketStatus
	BotActive       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClosedAt        *time.Time
}
