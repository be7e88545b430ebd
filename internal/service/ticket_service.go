package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/realtime"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util"
)

// TicketService coordinates ticket workflows over HTTP. Creation goes through
// the relay so new tickets are dispatched immediately.
type TicketService struct {
	tickets  repository.TicketRepository
	messages repository.MessageRepository
	relay    *realtime.Relay
}

// NewTicketService constructs the service.
func NewTicketService(tickets repository.TicketRepository, messages repository.MessageRepository, relay *realtime.Relay) *TicketService {
	return &TicketService{tickets: tickets, messages: messages, relay: relay}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Description string
	BotActive   bool
}

// CreateTicket creates a ticket on behalf of the caller and dispatches it.
func (s *TicketService) CreateTicket(ctx context.Context, caller *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Subject) == "" {
		return nil, apperrors.NewValidationError("subject required", nil)
	}
	ticket, err := s.relay.CreateTicket(ctx, realtime.CreateTicketInput{
		CompanyID:   caller.CompanyID,
		CreatedByID: caller.ID,
		Subject:     input.Subject,
		Description: input.Description,
		BotActive:   input.BotActive,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// GetTicket loads one ticket, scoped to the caller's company.
func (s *TicketService) GetTicket(ctx context.Context, caller *domain.User, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.CompanyID != caller.CompanyID {
		return nil, apperrors.NewForbidden("ticket belongs to another company")
	}
	return ticket, nil
}

// ListTickets lists the caller's company tickets.
func (s *TicketService) ListTickets(ctx context.Context, caller *domain.User, limit, offset int) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListByCompany(ctx, caller.CompanyID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListMessages returns the ticket conversation. Internal notes are only
// visible to staff roles.
func (s *TicketService) ListMessages(ctx context.Context, caller *domain.User, ticketID int64) ([]domain.Message, error) {
	if _, err := s.GetTicket(ctx, caller, ticketID); err != nil {
		return nil, err
	}
	includeInternal := caller.Role.IsAgent() || caller.Role == domain.RoleOwner
	msgs, err := s.messages.ListByTicket(ctx, ticketID, includeInternal)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return msgs, nil
}

// UpdateStatus moves a ticket through its lifecycle.
func (s *TicketService) UpdateStatus(ctx context.Context, caller *domain.User, ticketID int64, status domain.TicketStatus) (*domain.Ticket, error) {
	if status != domain.TicketStatusOpen && status != domain.TicketStatusInProgress && status != domain.TicketStatusClosed {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}
	if _, err := s.GetTicket(ctx, caller, ticketID); err != nil {
		return nil, err
	}
	if err := s.tickets.UpdateStatus(ctx, ticketID, status); err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.GetTicket(ctx, caller, ticketID)
}

// SetBotActive toggles automated replies for a ticket.
func (s *TicketService) SetBotActive(ctx context.Context, caller *domain.User, ticketID int64, active bool) (*domain.Ticket, error) {
	if _, err := s.GetTicket(ctx, caller, ticketID); err != nil {
		return nil, err
	}
	if err := s.tickets.SetBotActive(ctx, ticketID, active); err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.GetTicket(ctx, caller, ticketID)
}
