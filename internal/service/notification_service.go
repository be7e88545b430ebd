package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
)

// NotificationService forwards domain events to the outbound broker. When no
// publisher is configured it degrades to structured logging.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  events.Publisher
	logger     *zap.Logger
}

// NewNotificationService creates the service. publisher may be nil.
func NewNotificationService(dispatcher events.Dispatcher, publisher events.Publisher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to the events the service forwards.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.forward("ticket.created"))
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.forward("ticket.assigned"))
	n.dispatcher.Subscribe(events.EventMessageAdded, n.forward("ticket.message_added"))
	n.dispatcher.Subscribe(events.EventUserConnected, n.forward("user.connected"))
	n.dispatcher.Subscribe(events.EventUserOffline, n.forward("user.disconnected"))
}

func (n *NotificationService) forward(routingKey string) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		n.logger.Info("domain event",
			zap.String("type", string(event.Type)),
			zap.Int64("company_id", event.CompanyID),
			zap.Any("payload", event.Payload))

		if n.publisher == nil {
			return nil
		}
		if err := n.publisher.Publish(ctx, routingKey, event); err != nil {
			n.logger.Warn("event publish failed",
				zap.String("routing_key", routingKey),
				zap.Error(err))
			return err
		}
		return nil
	}
}
