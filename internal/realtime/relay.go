package realtime

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/bot"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
)

// TicketStore is the slice of ticket persistence the relay needs.
type TicketStore interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
}

// MessageStore persists conversation messages.
type MessageStore interface {
	Create(ctx context.Context, msg *domain.Message) error
}

// Relay routes inbound chat events to the right subscriber groups, persists
// messages, and performs the bot escalation round trip for tickets with
// automated replies enabled.
type Relay struct {
	registry   *Registry
	groups     *Broadcaster
	dispatcher *Dispatcher
	tickets    TicketStore
	messages   MessageStore
	responder  bot.Responder
	botTimeout time.Duration
	events     events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// RelayDependencies bundles collaborators for the relay.
type RelayDependencies struct {
	Registry   *Registry
	Groups     *Broadcaster
	Dispatcher *Dispatcher
	Tickets    TicketStore
	Messages   MessageStore
	Responder  bot.Responder
	BotTimeout time.Duration
	Events     events.Dispatcher
	Metrics    *observability.Metrics
}

// NewRelay constructs the relay.
func NewRelay(deps RelayDependencies, logger *zap.Logger) *Relay {
	timeout := deps.BotTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Relay{
		registry:   deps.Registry,
		groups:     deps.Groups,
		dispatcher: deps.Dispatcher,
		tickets:    deps.Tickets,
		messages:   deps.Messages,
		responder:  deps.Responder,
		botTimeout: timeout,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// CreateTicketInput describes a ticket creation request arriving over HTTP.
type CreateTicketInput struct {
	CompanyID   int64
	CreatedByID int64
	Subject     string
	Description string
	BotActive   bool
}

// CreateTicket persists a new ticket and immediately tries to dispatch it.
// A no-agent outcome leaves the ticket unassigned and is not an error.
func (r *Relay) CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		CompanyID:   input.CompanyID,
		CreatedByID: input.CreatedByID,
		Subject:     input.Subject,
		Description: input.Description,
		Status:      domain.TicketStatusOpen,
		BotActive:   input.BotActive,
	}
	if err := r.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	r.publishEvent(ctx, events.EventTicketCreated, ticket.CompanyID, events.TicketCreatedPayload{
		TicketID: ticket.ID,
		Subject:  ticket.Subject,
	})

	if asg, _ := r.dispatchTicket(ctx, ticket.ID, ticket.CompanyID); asg != nil {
		ticket.AssignedAgentID = &asg.AgentID
	}
	return ticket, nil
}

// HandleNewTicket dispatches a ticket announced over the realtime connection.
// Dispatch failures other than the no-agent outcome are reported back to the
// announcing connection only.
func (r *Relay) HandleNewTicket(ctx context.Context, sess *Session, nt NewTicket) {
	if nt.TicketID == 0 || nt.CompanyID == 0 {
		if sess != nil {
			sess.SendError("ticket id and company id are required")
		}
		return
	}

	// The no-agent outcome is silent: the ticket stays unassigned and no
	// event goes out.
	if _, err := r.dispatchTicket(ctx, nt.TicketID, nt.CompanyID); err != nil && !errors.Is(err, ErrNoEligibleAgents) {
		if sess != nil {
			sess.SendError("ticket assignment failed")
		}
	}
}

// dispatchTicket runs one dispatch and, on success, broadcasts the
// assignment to the tenant group. No event is emitted when assignment fails.
func (r *Relay) dispatchTicket(ctx context.Context, ticketID, companyID int64) (*Assignment, error) {
	asg, err := r.dispatcher.Dispatch(ctx, ticketID, companyID)
	if err != nil {
		if !errors.Is(err, ErrNoEligibleAgents) {
			r.logger.Error("dispatch failed",
				zap.Int64("ticket_id", ticketID),
				zap.Int64("company_id", companyID),
				zap.Error(err))
		}
		return nil, err
	}

	r.groups.Publish(companyGroup(companyID), EventTicketAssigned, TicketAssigned{
		TicketID:  ticketID,
		AgentID:   asg.AgentID,
		AgentName: asg.AgentName,
	}, nil)

	r.publishEvent(ctx, events.EventTicketAssigned, companyID, events.TicketAssignedPayload{
		TicketID:  ticketID,
		AgentID:   asg.AgentID,
		AgentName: asg.AgentName,
	})
	return asg, nil
}

// SendMessage runs the strictly ordered message pipeline: persist the user
// message, compute is_open from the ticket status, broadcast to the ticket
// group, then run the bot round trip when the ticket has automated replies
// enabled and the message is not internal. A persistence failure aborts the
// remaining steps and notifies only the originating connection.
func (r *Relay) SendMessage(ctx context.Context, sess *Session, in InboundMessage) {
	if in.TicketID == 0 || in.UserID == 0 || in.Body == "" || in.CompanyID == 0 {
		if sess != nil {
			sess.SendError("ticket id, user id, company id and message are required")
		}
		return
	}

	authorID := in.UserID
	msg := &domain.Message{
		TicketID: in.TicketID,
		AuthorID: &authorID,
		Body:     in.Body,
		Internal: in.Internal,
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		r.logger.Error("message persist failed",
			zap.Int64("ticket_id", in.TicketID), zap.Error(err))
		if sess != nil {
			sess.SendError("failed to save message")
		}
		return
	}

	ticket, err := r.tickets.GetByID(ctx, in.TicketID)
	if err != nil {
		r.logger.Error("ticket read failed",
			zap.Int64("ticket_id", in.TicketID), zap.Error(err))
		if sess != nil {
			sess.SendError("failed to load ticket")
		}
		return
	}
	isOpen := ticket.Status.IsOpen()

	r.groups.Publish(ticketGroup(in.TicketID), EventReceiveMessage, OutboundMessage{
		TicketID:  in.TicketID,
		AuthorID:  msg.AuthorID,
		Body:      in.Body,
		Internal:  in.Internal,
		SentAt:    msg.CreatedAt,
		CompanyID: in.CompanyID,
		IsOpen:    isOpen,
	}, nil)

	r.publishEvent(ctx, events.EventMessageAdded, in.CompanyID, events.MessageAddedPayload{
		TicketID:    in.TicketID,
		AuthorID:    msg.AuthorID,
		Internal:    in.Internal,
		BodyPreview: preview(in.Body),
	})

	if ticket.BotActive && !in.Internal {
		r.botRoundTrip(ctx, sess, in, isOpen)
	}
}

// botRoundTrip escalates one customer message to the AI responder and
// rebroadcasts the reply as an internal, bot-authored message. The round trip
// is bounded by the relay's bot timeout; expiry abandons only the bot step,
// the user's message is already persisted and broadcast.
func (r *Relay) botRoundTrip(ctx context.Context, sess *Session, in InboundMessage, isOpen bool) {
	botCtx, cancel := context.WithTimeout(ctx, r.botTimeout)
	defer cancel()

	reply, err := r.responder.Reply(botCtx, in.CompanyID, in.Body)
	if err != nil {
		r.metrics.RecordBotRoundTrip(false)
		r.logger.Warn("bot responder failed",
			zap.Int64("ticket_id", in.TicketID),
			zap.Int64("company_id", in.CompanyID),
			zap.Error(err))
		if sess != nil {
			sess.SendError("automated reply unavailable")
		}
		return
	}

	botMsg := &domain.Message{
		TicketID:     in.TicketID,
		AuthorID:     nil,
		Body:         reply,
		Internal:     true,
		BotGenerated: true,
	}

	r.groups.Publish(ticketGroup(in.TicketID), EventReceiveMessage, OutboundMessage{
		TicketID:     in.TicketID,
		AuthorID:     nil,
		Body:         reply,
		Internal:     true,
		SentAt:       time.Now(),
		CompanyID:    in.CompanyID,
		IsOpen:       isOpen,
		BotGenerated: true,
	}, nil)

	if err := r.messages.Create(ctx, botMsg); err != nil {
		r.metrics.RecordBotRoundTrip(false)
		r.logger.Error("bot reply persist failed",
			zap.Int64("ticket_id", in.TicketID), zap.Error(err))
		if sess != nil {
			sess.SendError("failed to save automated reply")
		}
		return
	}

	r.metrics.RecordBotRoundTrip(true)
	r.publishEvent(ctx, events.EventMessageAdded, in.CompanyID, events.MessageAddedPayload{
		TicketID:     in.TicketID,
		Internal:     true,
		BotGenerated: true,
		BodyPreview:  preview(reply),
	})
}

func (r *Relay) publishEvent(ctx context.Context, eventType events.EventType, companyID int64, payload any) {
	if r.events == nil {
		return
	}
	_ = r.events.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		CompanyID: companyID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// preview truncates a message body for event payloads without splitting a
// UTF-8 sequence mid-rune.
func preview(body string) string {
	const max = 120
	if len(body) <= max {
		return body
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
