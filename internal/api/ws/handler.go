// Package ws is the websocket transport for the realtime core. Each client
// keeps one live connection; a goroutine-per-connection read loop decodes
// envelope frames and hands them to the presence registry and the relay.
package ws

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/realtime"
)

// Handler upgrades websocket requests and runs the per-connection loop.
type Handler struct {
	registry *realtime.Registry
	relay    *realtime.Relay
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewHandler constructs the websocket handler.
func NewHandler(registry *realtime.Registry, relay *realtime.Relay, metrics *observability.Metrics, logger *zap.Logger) *Handler {
	return &Handler{registry: registry, relay: relay, metrics: metrics, logger: logger}
}

// UpgradeGuard rejects plain HTTP requests on the websocket route.
func UpgradeGuard(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Upgrade returns the fiber handler serving the websocket endpoint.
func (h *Handler) Upgrade() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *Handler) serve(conn *websocket.Conn) {
	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := newConnSink(conn)
	stopKeepalive := startKeepalive(conn, &sink.mu)
	defer stopKeepalive()

	// Identity arrives over the auth_user event; until then the session is
	// anonymous and Remove is a no-op.
	var sess *realtime.Session
	defer func() {
		h.registry.Remove(sess)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env realtime.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			_ = sink.Send(realtime.EventError, realtime.ErrorPayload{Message: "malformed frame"})
			continue
		}

		switch env.Event {
		case realtime.EventAuthUser:
			sess = h.handleAuth(sess, env.Data, sink)
		case realtime.EventJoinTicket:
			h.handleJoinTicket(sess, env.Data, sink)
		case realtime.EventNewTicket:
			var nt realtime.NewTicket
			if err := json.Unmarshal(env.Data, &nt); err != nil {
				_ = sink.Send(realtime.EventError, realtime.ErrorPayload{Message: "malformed new_ticket payload"})
				continue
			}
			h.relay.HandleNewTicket(ctx, sess, nt)
		case realtime.EventSendMessage:
			var in realtime.InboundMessage
			if err := json.Unmarshal(env.Data, &in); err != nil {
				_ = sink.Send(realtime.EventError, realtime.ErrorPayload{Message: "malformed send_message payload"})
				continue
			}
			h.relay.SendMessage(ctx, sess, in)
		default:
			_ = sink.Send(realtime.EventError, realtime.ErrorPayload{Message: "unknown event: " + env.Event})
		}
	}
}

func (h *Handler) handleAuth(current *realtime.Session, data json.RawMessage, sink *connSink) *realtime.Session {
	var id realtime.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		_ = sink.Send(realtime.EventError, realtime.ErrorPayload{Message: "malformed auth_user payload"})
		return current
	}

	// Re-announcing under a different user id on the same connection tears
	// the old session down first.
	if current != nil && current.UserID != id.UserID {
		h.registry.Remove(current)
		current = nil
	}

	sess, err := h.registry.Announce(id, sink)
	if err != nil {
		_ = sink.Send(realtime.EventError, realtime.ErrorPayload{Message: err.Error()})
		return current
	}
	return sess
}

func (h *Handler) handleJoinTicket(sess *realtime.Session, data json.RawMessage, sink *connSink) {
	ticketID, ok := decodeTicketID(data)
	if !ok {
		_ = sink.Send(realtime.EventError, realtime.ErrorPayload{Message: "malformed join_ticket payload"})
		return
	}
	if sess == nil {
		_ = sink.Send(realtime.EventError, realtime.ErrorPayload{Message: "announce identity before joining a ticket"})
		return
	}
	h.registry.JoinTicketGroup(sess, ticketID)
	h.logger.Debug("joined ticket group",
		zap.Int64("user_id", sess.UserID),
		zap.Int64("ticket_id", ticketID))
}

// decodeTicketID accepts either {"ticket_id": n} or a bare number, which is
// what older clients send.
func decodeTicketID(data json.RawMessage) (int64, bool) {
	var jt realtime.JoinTicket
	if err := json.Unmarshal(data, &jt); err == nil && jt.TicketID != 0 {
		return jt.TicketID, true
	}
	var id int64
	if err := json.Unmarshal(data, &id); err == nil && id != 0 {
		return id, true
	}
	return 0, false
}
