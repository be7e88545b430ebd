// Package realtime implements the live subsystem of the support desk: the
// presence registry for connected users, the round-robin ticket dispatcher,
// and the relay that fans ticket messages out to subscribers and escalates
// to the bot responder when a ticket has automated replies enabled.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// Inbound event names, sent by clients.
const (
	EventAuthUser    = "auth_user"
	EventJoinTicket  = "join_ticket"
	EventNewTicket   = "new_ticket"
	EventSendMessage = "send_message"
)

// Outbound event names, pushed to clients.
const (
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
	EventOnlineUsers      = "online_users"
	EventReceiveMessage   = "receive_message"
	EventTicketAssigned   = "ticket_assigned"
	EventError            = "error"
)

// Envelope is the wire frame for both directions: an event name plus its
// JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Identity is the auth_user payload announcing who owns a connection.
type Identity struct {
	UserID    int64       `json:"user_id"`
	CompanyID int64       `json:"company_id"`
	RoleID    domain.Role `json:"role_id"`
	Name      string      `json:"name"`
}

// Presence describes one online user in roster snapshots and
// connect/disconnect notices.
type Presence struct {
	UserID int64       `json:"user_id"`
	Name   string      `json:"name"`
	RoleID domain.Role `json:"role_id"`
}

// JoinTicket subscribes the connection to a ticket group.
type JoinTicket struct {
	TicketID int64 `json:"ticket_id"`
}

// NewTicket announces a freshly created ticket that needs dispatching.
type NewTicket struct {
	TicketID  int64 `json:"ticket_id"`
	CompanyID int64 `json:"company_id"`
}

// InboundMessage is the send_message payload.
type InboundMessage struct {
	TicketID  int64  `json:"ticket_id"`
	UserID    int64  `json:"user_id"`
	Body      string `json:"message"`
	Internal  bool   `json:"internal"`
	CompanyID int64  `json:"company_id"`
}

// OutboundMessage is the receive_message payload broadcast to the ticket
// group. AuthorID is nil for bot replies.
type OutboundMessage struct {
	TicketID     int64     `json:"ticket_id"`
	AuthorID     *int64    `json:"user_id"`
	Body         string    `json:"message"`
	Internal     bool      `json:"internal"`
	SentAt       time.Time `json:"sent_at"`
	CompanyID    int64     `json:"company_id"`
	IsOpen       bool      `json:"is_open"`
	BotGenerated bool      `json:"bot_generated,omitempty"`
}

// TicketAssigned is broadcast to the tenant group after a successful dispatch.
type TicketAssigned struct {
	TicketID  int64  `json:"ticket_id"`
	AgentID   int64  `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

// ErrorPayload is sent to the originating connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}
