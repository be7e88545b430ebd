package realtime

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/spec-kit/support-desk/internal/domain"
)

func TestSendMessageBroadcastsToTicketGroup(t *testing.T) {
	fx := newRelayFixture(t, time.Second)
	ticket := fx.tickets.seedTicket(t, 10, domain.TicketStatusOpen, false)

	sender, _ := announce(t, fx.registry, 1, 10, domain.RoleCustomer, "cara")
	agent, agentSink := announce(t, fx.registry, 2, 10, domain.RoleAgent, "ana")
	fx.registry.JoinTicketGroup(sender, ticket.ID)
	fx.registry.JoinTicketGroup(agent, ticket.ID)

	fx.relay.SendMessage(context.Background(), sender, InboundMessage{
		TicketID:  ticket.ID,
		UserID:    1,
		CompanyID: 10,
		Body:      "it is still on fire",
	})

	received := agentSink.recorded(EventReceiveMessage)
	if len(received) != 1 {
		t.Fatalf("expected 1 receive_message on agent sink, got %d", len(received))
	}
	out := received[0].Payload.(OutboundMessage)
	if out.Body != "it is still on fire" || out.AuthorID == nil || *out.AuthorID != 1 {
		t.Errorf("unexpected broadcast payload: %+v", out)
	}
	if !out.IsOpen {
		t.Error("open ticket must broadcast is_open=true")
	}

	msgs := fx.messages.all()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(msgs))
	}
	if fx.responder.callCount() != 0 {
		t.Error("responder called for a ticket without automated replies")
	}
}

func TestSendMessageClosedTicketBroadcastsIsOpenFalse(t *testing.T) {
	fx := newRelayFixture(t, time.Second)
	ticket := fx.tickets.seedTicket(t, 10, domain.TicketStatusClosed, false)

	sender, senderSink := announce(t, fx.registry, 1, 10, domain.RoleCustomer, "cara")
	fx.registry.JoinTicketGroup(sender, ticket.ID)

	fx.relay.SendMessage(context.Background(), sender, InboundMessage{
		TicketID: ticket.ID, UserID: 1, CompanyID: 10, Body: "hello?",
	})

	received := senderSink.recorded(EventReceiveMessage)
	if len(received) != 1 {
		t.Fatalf("expected 1 receive_message, got %d", len(received))
	}
	if out := received[0].Payload.(OutboundMessage); out.IsOpen {
		t.Error("closed ticket must broadcast is_open=false")
	}
}

func TestSendMessageBotRoundTrip(t *testing.T) {
	fx := newRelayFixture(t, time.Second)
	ticket := fx.tickets.seedTicket(t, 10, domain.TicketStatusOpen, true)

	sender, senderSink := announce(t, fx.registry, 1, 10, domain.RoleCustomer, "cara")
	fx.registry.JoinTicketGroup(sender, ticket.ID)

	fx.relay.SendMessage(context.Background(), sender, InboundMessage{
		TicketID: ticket.ID, UserID: 1, CompanyID: 10, Body: "help",
	})

	// The user message arrives before the bot reply.
	received := senderSink.recorded(EventReceiveMessage)
	if len(received) != 2 {
		t.Fatalf("expected user message then bot reply, got %d events", len(received))
	}
	userMsg := received[0].Payload.(OutboundMessage)
	botMsg := received[1].Payload.(OutboundMessage)
	if userMsg.BotGenerated {
		t.Error("first broadcast should be the user message")
	}
	if !botMsg.BotGenerated || !botMsg.Internal || botMsg.AuthorID != nil {
		t.Errorf("bot reply must be internal, bot-generated and authorless: %+v", botMsg)
	}
	if botMsg.Body != fx.responder.reply {
		t.Errorf("bot reply body %q, want %q", botMsg.Body, fx.responder.reply)
	}

	// Both messages persisted, user first.
	msgs := fx.messages.all()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}
	if msgs[0].BotGenerated || !msgs[1].BotGenerated {
		t.Errorf("persist order wrong: %+v", msgs)
	}
	if msgs[1].AuthorID != nil {
		t.Error("bot message must have a nil author")
	}
}

func TestSendMessageInternalSkipsBot(t *testing.T) {
	fx := newRelayFixture(t, time.Second)
	ticket := fx.tickets.seedTicket(t, 10, domain.TicketStatusOpen, true)

	sender, _ := announce(t, fx.registry, 2, 10, domain.RoleAgent, "ana")
	fx.registry.JoinTicketGroup(sender, ticket.ID)

	fx.relay.SendMessage(context.Background(), sender, InboundMessage{
		TicketID: ticket.ID, UserID: 2, CompanyID: 10, Body: "internal note", Internal: true,
	})

	if fx.responder.callCount() != 0 {
		t.Error("internal messages must not reach the responder")
	}
	if len(fx.messages.all()) != 1 {
		t.Errorf("expected only the internal note persisted, got %d", len(fx.messages.all()))
	}
}

func TestSendMessagePersistFailureNotifiesSenderOnly(t *testing.T) {
	fx := newRelayFixture(t, time.Second)
	ticket := fx.tickets.seedTicket(t, 10, domain.TicketStatusOpen, false)

	sender, senderSink := announce(t, fx.registry, 1, 10, domain.RoleCustomer, "cara")
	agent, agentSink := announce(t, fx.registry, 2, 10, domain.RoleAgent, "ana")
	fx.registry.JoinTicketGroup(sender, ticket.ID)
	fx.registry.JoinTicketGroup(agent, ticket.ID)

	fx.messages.createErr = context.DeadlineExceeded
	fx.relay.SendMessage(context.Background(), sender, InboundMessage{
		TicketID: ticket.ID, UserID: 1, CompanyID: 10, Body: "lost",
	})

	if errs := senderSink.recorded(EventError); len(errs) != 1 {
		t.Fatalf("sender should receive exactly one error event, got %d", len(errs))
	}
	if got := agentSink.recorded(EventReceiveMessage); len(got) != 0 {
		t.Errorf("failed persist must not broadcast, agent saw %d messages", len(got))
	}
	if got := agentSink.recorded(EventError); len(got) != 0 {
		t.Errorf("error must reach only the sender, agent saw %d errors", len(got))
	}
}

func TestSendMessageBotFailureKeepsUserMessage(t *testing.T) {
	fx := newRelayFixture(t, time.Second)
	ticket := fx.tickets.seedTicket(t, 10, domain.TicketStatusOpen, true)

	sender, senderSink := announce(t, fx.registry, 1, 10, domain.RoleCustomer, "cara")
	fx.registry.JoinTicketGroup(sender, ticket.ID)

	fx.responder.err = context.DeadlineExceeded
	fx.relay.SendMessage(context.Background(), sender, InboundMessage{
		TicketID: ticket.ID, UserID: 1, CompanyID: 10, Body: "help",
	})

	// The user's message survives the failed escalation.
	if got := senderSink.recorded(EventReceiveMessage); len(got) != 1 {
		t.Fatalf("expected only the user message broadcast, got %d", len(got))
	}
	if errs := senderSink.recorded(EventError); len(errs) != 1 {
		t.Fatalf("sender should be told the reply is unavailable, got %d errors", len(errs))
	}
	if msgs := fx.messages.all(); len(msgs) != 1 {
		t.Errorf("expected 1 persisted message, got %d", len(msgs))
	}
}

func TestSendMessageBotTimeout(t *testing.T) {
	fx := newRelayFixture(t, 20*time.Millisecond)
	ticket := fx.tickets.seedTicket(t, 10, domain.TicketStatusOpen, true)

	sender, senderSink := announce(t, fx.registry, 1, 10, domain.RoleCustomer, "cara")
	fx.registry.JoinTicketGroup(sender, ticket.ID)

	fx.responder.delay = 500 * time.Millisecond
	start := time.Now()
	fx.relay.SendMessage(context.Background(), sender, InboundMessage{
		TicketID: ticket.ID, UserID: 1, CompanyID: 10, Body: "help",
	})

	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("bot timeout did not bound the round trip, took %s", elapsed)
	}
	if errs := senderSink.recorded(EventError); len(errs) != 1 {
		t.Fatalf("expected a timeout error event, got %d", len(errs))
	}
	if got := senderSink.recorded(EventReceiveMessage); len(got) != 1 {
		t.Errorf("user message broadcast must survive the timeout, got %d", len(got))
	}
}

func TestSendMessageValidation(t *testing.T) {
	fx := newRelayFixture(t, time.Second)
	sender, senderSink := announce(t, fx.registry, 1, 10, domain.RoleCustomer, "cara")

	fx.relay.SendMessage(context.Background(), sender, InboundMessage{
		TicketID: 0, UserID: 1, CompanyID: 10, Body: "no ticket",
	})

	if errs := senderSink.recorded(EventError); len(errs) != 1 {
		t.Fatalf("expected a validation error event, got %d", len(errs))
	}
	if len(fx.messages.all()) != 0 {
		t.Error("invalid payload must not persist anything")
	}
}

func TestCreateTicketAssignsConnectedAgent(t *testing.T) {
	fx := newRelayFixture(t, time.Second)

	_, agentSink := announce(t, fx.registry, 2, 10, domain.RoleAgent, "ana")

	ticket, err := fx.relay.CreateTicket(context.Background(), CreateTicketInput{
		CompanyID:   10,
		CreatedByID: 1,
		Subject:     "no coffee",
		Description: "the machine is empty",
	})
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if ticket.AssignedAgentID == nil || *ticket.AssignedAgentID != 2 {
		t.Fatalf("expected assignment to agent 2, got %v", ticket.AssignedAgentID)
	}

	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.AssignedAgentID == nil || *stored.AssignedAgentID != 2 {
		t.Errorf("store assignment %v, want agent 2", stored.AssignedAgentID)
	}

	assigned := agentSink.recorded(EventTicketAssigned)
	if len(assigned) != 1 {
		t.Fatalf("expected 1 ticket_assigned on the tenant group, got %d", len(assigned))
	}
	payload := assigned[0].Payload.(TicketAssigned)
	if payload.TicketID != ticket.ID || payload.AgentID != 2 || payload.AgentName != "ana" {
		t.Errorf("unexpected ticket_assigned payload: %+v", payload)
	}
}

func TestCreateTicketWithoutAgentsStaysUnassigned(t *testing.T) {
	fx := newRelayFixture(t, time.Second)

	ticket, err := fx.relay.CreateTicket(context.Background(), CreateTicketInput{
		CompanyID:   10,
		CreatedByID: 1,
		Subject:     "quiet office",
	})
	if err != nil {
		t.Fatalf("CreateTicket must succeed with nobody online: %v", err)
	}
	if ticket.AssignedAgentID != nil {
		t.Errorf("expected unassigned ticket, got agent %d", *ticket.AssignedAgentID)
	}
	if ticket.Status != domain.TicketStatusOpen {
		t.Errorf("expected open status, got %d", ticket.Status)
	}
}

func TestHandleNewTicketAssignmentFailureNotifiesCaller(t *testing.T) {
	fx := newRelayFixture(t, time.Second)

	announce(t, fx.registry, 2, 10, domain.RoleAgent, "ana")
	sender, senderSink := announce(t, fx.registry, 1, 10, domain.RoleCustomer, "cara")

	// The ticket id does not exist, so the assignment write fails.
	fx.relay.HandleNewTicket(context.Background(), sender, NewTicket{TicketID: 999, CompanyID: 10})

	if errs := senderSink.recorded(EventError); len(errs) != 1 {
		t.Fatalf("caller should be told the assignment failed, got %d errors", len(errs))
	}
}

func TestHandleNewTicketNoAgentsIsSilent(t *testing.T) {
	fx := newRelayFixture(t, time.Second)
	ticket := fx.tickets.seedTicket(t, 10, domain.TicketStatusOpen, false)

	sender, senderSink := announce(t, fx.registry, 1, 10, domain.RoleCustomer, "cara")

	fx.relay.HandleNewTicket(context.Background(), sender, NewTicket{TicketID: ticket.ID, CompanyID: 10})

	if errs := senderSink.recorded(EventError); len(errs) != 0 {
		t.Errorf("no-agent outcome must be silent, got %d errors", len(errs))
	}
	if got := senderSink.recorded(EventTicketAssigned); len(got) != 0 {
		t.Errorf("no assignment event expected, got %d", len(got))
	}
}

func TestPreviewKeepsRuneBoundaries(t *testing.T) {
	if got := preview("short"); got != "short" {
		t.Errorf("short body changed: %q", got)
	}

	// 119 ASCII bytes followed by a 3-byte rune straddling the cut point.
	body := strings.Repeat("a", 119) + "日本語"
	got := preview(body)
	if !utf8.ValidString(got) {
		t.Fatalf("preview produced invalid UTF-8: %q", got)
	}
	if len(got) > 120 {
		t.Errorf("preview too long: %d bytes", len(got))
	}
	if got != strings.Repeat("a", 119) {
		t.Errorf("expected the straddling rune dropped, got %q", got)
	}
}

func TestHandleNewTicketValidation(t *testing.T) {
	fx := newRelayFixture(t, time.Second)
	sender, senderSink := announce(t, fx.registry, 1, 10, domain.RoleCustomer, "cara")

	fx.relay.HandleNewTicket(context.Background(), sender, NewTicket{TicketID: 0, CompanyID: 10})

	if errs := senderSink.recorded(EventError); len(errs) != 1 {
		t.Fatalf("expected a validation error event, got %d", len(errs))
	}
}
