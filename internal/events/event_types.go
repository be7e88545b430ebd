package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventTicketAssigned EventType = "ticket_assigned"
	EventMessageAdded   EventType = "ticket_message_added"
	EventUserConnected  EventType = "user_connected"
	EventUserOffline    EventType = "user_disconnected"
)

// Event represents a domain event emitted by the relay and services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CompanyID int64       `json:"company_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TicketID  int64  `json:"ticket_id"`
	AgentID   int64  `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketID int64  `json:"ticket_id"`
	Subject  string `json:"subject"`
}

// MessageAddedPayload payload.
type MessageAddedPayload struct {
	TicketID     int64  `json:"ticket_id"`
	AuthorID     *int64 `json:"author_id,omitempty"`
	Internal     bool   `json:"internal"`
	BotGenerated bool   `json:"bot_generated"`
	BodyPreview  string `json:"body_preview"`
}

// PresencePayload payload for connect/disconnect events.
type PresencePayload struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	RoleID int16  `json:"role_id"`
}
