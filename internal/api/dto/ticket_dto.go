package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// TicketCreateRequest payload for ticket creation.
type TicketCreateRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	BotActive   bool   `json:"bot_active"`
}

// TicketStatusRequest payload for status changes.
type TicketStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// TicketBotRequest payload for toggling automated replies.
type TicketBotRequest struct {
	Active bool `json:"active"`
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID              int64               `json:"id"`
	CompanyID       int64               `json:"company_id"`
	CreatedByID     int64               `json:"created_by_id"`
	AssignedAgentID *int64              `json:"assigned_agent_id,omitempty"`
	Subject         string              `json:"subject"`
	Description     string              `json:"description"`
	Status          domain.TicketStatus `json:"status"`
	BotActive       bool                `json:"bot_active"`
	CreatedAt       time.Time           `json:"created_at"`
}

// NewTicketResponse maps the domain model.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:              ticket.ID,
		CompanyID:       ticket.CompanyID,
		CreatedByID:     ticket.CreatedByID,
		AssignedAgentID: ticket.AssignedAgentID,
		Subject:         ticket.Subject,
		Description:     ticket.Description,
		Status:          ticket.Status,
		BotActive:       ticket.BotActive,
		CreatedAt:       ticket.CreatedAt,
	}
}

// MessageResponse is the public view of a conversation message.
type MessageResponse struct {
	ID           int64     `json:"id"`
	TicketID     int64     `json:"ticket_id"`
	AuthorID     *int64    `json:"author_id,omitempty"`
	Body         string    `json:"body"`
	Internal     bool      `json:"internal"`
	BotGenerated bool      `json:"bot_generated"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewMessageResponse maps the domain model.
func NewMessageResponse(msg domain.Message) MessageResponse {
	return MessageResponse{
		ID:           msg.ID,
		TicketID:     msg.TicketID,
		AuthorID:     msg.AuthorID,
		Body:         msg.Body,
		Internal:     msg.Internal,
		BotGenerated: msg.BotGenerated,
		CreatedAt:    msg.CreatedAt,
	}
}
