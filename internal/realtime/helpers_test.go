package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
)

// fakeSink records every event pushed to one connection.
type fakeSink struct {
	mu      sync.Mutex
	events  []sinkEvent
	closed  bool
	sendErr error
}

type sinkEvent struct {
	Event   string
	Payload any
}

func (s *fakeSink) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.events = append(s.events, sinkEvent{Event: event, Payload: payload})
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// recorded returns all events with the given name, in arrival order. An empty
// name matches everything.
func (s *fakeSink) recorded(event string) []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkEvent
	for _, e := range s.events {
		if event == "" || e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	logger := zap.NewNop()
	return NewRegistry(NewBroadcaster(logger), nil, logger)
}

// announce registers a user and fails the test on error.
func announce(t *testing.T, r *Registry, userID, companyID int64, role domain.Role, name string) (*Session, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	sess, err := r.Announce(Identity{UserID: userID, CompanyID: companyID, RoleID: role, Name: name}, sink)
	if err != nil {
		t.Fatalf("Announce(%d) failed: %v", userID, err)
	}
	return sess, sink
}

// fakeAssignmentStore records assignments in memory.
type fakeAssignmentStore struct {
	mu          sync.Mutex
	assignments map[int64]int64
	assignErr   error
	readErr     error
}

func newFakeAssignmentStore() *fakeAssignmentStore {
	return &fakeAssignmentStore{assignments: make(map[int64]int64)}
}

func (s *fakeAssignmentStore) AssignAgent(_ context.Context, ticketID, agentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignErr != nil {
		return s.assignErr
	}
	s.assignments[ticketID] = agentID
	return nil
}

func (s *fakeAssignmentStore) AssignedAgent(_ context.Context, ticketID int64) (*int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	agentID, ok := s.assignments[ticketID]
	if !ok {
		return nil, nil
	}
	return &agentID, nil
}

func (s *fakeAssignmentStore) assigned(ticketID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agentID, ok := s.assignments[ticketID]
	return agentID, ok
}

// fakeTicketStore backs the relay with in-memory tickets.
type fakeTicketStore struct {
	mu        sync.Mutex
	tickets   map[int64]*domain.Ticket
	nextID    int64
	createErr error
	getErr    error
}

func newFakeTicketStore() *fakeTicketStore {
	return &fakeTicketStore{tickets: make(map[int64]*domain.Ticket), nextID: 1}
}

func (s *fakeTicketStore) Create(_ context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	ticket.ID = s.nextID
	s.nextID++
	ticket.CreatedAt = time.Now()
	copied := *ticket
	s.tickets[ticket.ID] = &copied
	return nil
}

func (s *fakeTicketStore) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, errors.New("ticket not found")
	}
	copied := *ticket
	return &copied, nil
}

func (s *fakeTicketStore) AssignAgent(_ context.Context, ticketID, agentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return errors.New("ticket not found")
	}
	ticket.AssignedAgentID = &agentID
	return nil
}

func (s *fakeTicketStore) AssignedAgent(_ context.Context, ticketID int64) (*int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, errors.New("ticket not found")
	}
	return ticket.AssignedAgentID, nil
}

// seedTicket inserts a ticket directly into the store.
func (s *fakeTicketStore) seedTicket(t *testing.T, companyID int64, status domain.TicketStatus, botActive bool) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		CompanyID:   companyID,
		CreatedByID: 100,
		Subject:     "printer on fire",
		Status:      status,
		BotActive:   botActive,
	}
	if err := s.Create(context.Background(), ticket); err != nil {
		t.Fatal(err)
	}
	return ticket
}

// fakeMessageStore records persisted messages in order.
type fakeMessageStore struct {
	mu        sync.Mutex
	messages  []domain.Message
	createErr error
}

func (s *fakeMessageStore) Create(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	msg.ID = int64(len(s.messages) + 1)
	msg.CreatedAt = time.Now()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeMessageStore) all() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message{}, s.messages...)
}

// fakeResponder returns a canned reply, optionally after a delay that
// respects context cancellation.
type fakeResponder struct {
	mu    sync.Mutex
	reply string
	err   error
	delay time.Duration
	calls int
}

func (f *fakeResponder) Reply(ctx context.Context, _ int64, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	reply, err, delay := f.reply, f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return reply, err
}

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type relayFixture struct {
	relay      *Relay
	registry   *Registry
	groups     *Broadcaster
	dispatcher *Dispatcher
	tickets    *fakeTicketStore
	messages   *fakeMessageStore
	responder  *fakeResponder
}

func newRelayFixture(t *testing.T, botTimeout time.Duration) *relayFixture {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	bus := events.NewInMemoryDispatcher()
	groups := NewBroadcaster(logger)
	registry := NewRegistry(groups, bus, logger)
	tickets := newFakeTicketStore()
	messages := &fakeMessageStore{}
	responder := &fakeResponder{reply: "have you tried turning it off and on again?"}
	dispatcher := NewDispatcher(registry, tickets, metrics, logger)

	relay := NewRelay(RelayDependencies{
		Registry:   registry,
		Groups:     groups,
		Dispatcher: dispatcher,
		Tickets:    tickets,
		Messages:   messages,
		Responder:  responder,
		BotTimeout: botTimeout,
		Events:     bus,
		Metrics:    metrics,
	}, logger)

	return &relayFixture{
		relay:      relay,
		registry:   registry,
		groups:     groups,
		dispatcher: dispatcher,
		tickets:    tickets,
		messages:   messages,
		responder:  responder,
	}
}
