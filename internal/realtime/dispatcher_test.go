package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/observability"
)

func newTestDispatcher(t *testing.T, store AssignmentStore) (*Dispatcher, *Registry) {
	t.Helper()
	logger := zap.NewNop()
	registry := NewRegistry(NewBroadcaster(logger), nil, logger)
	return NewDispatcher(registry, store, observability.NewMetrics(), logger), registry
}

func TestDispatchRoundRobin(t *testing.T) {
	store := newFakeAssignmentStore()
	d, r := newTestDispatcher(t, store)
	ctx := context.Background()

	announce(t, r, 1, 10, domain.RoleAgent, "ana")
	announce(t, r, 2, 10, domain.RoleAgent, "ben")

	wantAgents := []int64{1, 2, 1}
	for i, want := range wantAgents {
		ticketID := int64(100 + i)
		asg, err := d.Dispatch(ctx, ticketID, 10)
		if err != nil {
			t.Fatalf("dispatch %d failed: %v", i, err)
		}
		if asg.AgentID != want {
			t.Errorf("dispatch %d assigned agent %d, want %d", i, asg.AgentID, want)
		}
		if got, ok := store.assigned(ticketID); !ok || got != want {
			t.Errorf("store recorded agent %d for ticket %d, want %d", got, ticketID, want)
		}
	}
}

func TestDispatchNoAgents(t *testing.T) {
	store := newFakeAssignmentStore()
	d, r := newTestDispatcher(t, store)
	ctx := context.Background()

	// Customers never receive assignments.
	announce(t, r, 1, 10, domain.RoleCustomer, "cara")

	asg, err := d.Dispatch(ctx, 100, 10)
	if !errors.Is(err, ErrNoEligibleAgents) {
		t.Fatalf("expected ErrNoEligibleAgents, got %v", err)
	}
	if asg != nil {
		t.Fatalf("expected nil assignment, got %+v", asg)
	}
	if _, ok := store.assigned(100); ok {
		t.Error("no-agent dispatch must not write to the store")
	}

	// Once an agent comes online the very next dispatch succeeds.
	announce(t, r, 2, 10, domain.RoleAgent, "ana")
	asg, err = d.Dispatch(ctx, 101, 10)
	if err != nil {
		t.Fatalf("dispatch after agent connect failed: %v", err)
	}
	if asg.AgentID != 2 {
		t.Errorf("expected agent 2, got %d", asg.AgentID)
	}
}

func TestDispatchSingleAgentRepeats(t *testing.T) {
	store := newFakeAssignmentStore()
	d, r := newTestDispatcher(t, store)
	ctx := context.Background()

	announce(t, r, 1, 10, domain.RoleAgent, "ana")

	for i := 0; i < 3; i++ {
		asg, err := d.Dispatch(ctx, int64(100+i), 10)
		if err != nil {
			t.Fatalf("dispatch %d failed: %v", i, err)
		}
		if asg.AgentID != 1 {
			t.Errorf("dispatch %d assigned agent %d, want 1", i, asg.AgentID)
		}
	}
}

func TestDispatchSurvivesRosterChurn(t *testing.T) {
	store := newFakeAssignmentStore()
	d, r := newTestDispatcher(t, store)
	ctx := context.Background()

	announce(t, r, 1, 10, domain.RoleAgent, "ana")
	sess2, _ := announce(t, r, 2, 10, domain.RoleAgent, "ben")
	announce(t, r, 3, 10, domain.RoleAgent, "carl")

	asg, err := d.Dispatch(ctx, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	if asg.AgentID != 1 {
		t.Fatalf("expected agent 1 first, got %d", asg.AgentID)
	}

	// Agent 2 disconnects. Rotation continues from agent 1's position in the
	// shrunken roster, so agent 3 is next rather than restarting at the front.
	r.Remove(sess2)
	asg, err = d.Dispatch(ctx, 101, 10)
	if err != nil {
		t.Fatal(err)
	}
	if asg.AgentID != 3 {
		t.Fatalf("expected agent 3 after roster shrink, got %d", asg.AgentID)
	}

	// A newly connected agent joins the end of the rotation.
	announce(t, r, 4, 10, domain.RoleAgent, "dana")
	asg, err = d.Dispatch(ctx, 102, 10)
	if err != nil {
		t.Fatal(err)
	}
	if asg.AgentID != 4 {
		t.Fatalf("expected agent 4 after roster growth, got %d", asg.AgentID)
	}
}

func TestDispatchStoreFailure(t *testing.T) {
	store := newFakeAssignmentStore()
	d, r := newTestDispatcher(t, store)
	ctx := context.Background()

	announce(t, r, 1, 10, domain.RoleAgent, "ana")
	announce(t, r, 2, 10, domain.RoleAgent, "ben")

	store.assignErr = errors.New("connection reset")
	_, err := d.Dispatch(ctx, 100, 10)
	if err == nil {
		t.Fatal("expected error from failed store write")
	}
	if !errors.Is(err, ErrAssignmentWrite) {
		t.Fatalf("expected ErrAssignmentWrite, got %v", err)
	}
	if errors.Is(err, ErrNoEligibleAgents) {
		t.Fatal("store failure must be distinguishable from the no-agent outcome")
	}

	// The rotation moved past the failed agent.
	store.assignErr = nil
	asg, err := d.Dispatch(ctx, 101, 10)
	if err != nil {
		t.Fatal(err)
	}
	if asg.AgentID != 2 {
		t.Errorf("expected rotation to continue at agent 2, got %d", asg.AgentID)
	}
}

func TestDispatchConcurrentFairness(t *testing.T) {
	store := newFakeAssignmentStore()
	d, r := newTestDispatcher(t, store)

	announce(t, r, 1, 10, domain.RoleAgent, "ana")
	announce(t, r, 2, 10, domain.RoleAgent, "ben")

	const tickets = 10
	var wg sync.WaitGroup
	for i := 0; i < tickets; i++ {
		wg.Add(1)
		go func(ticketID int64) {
			defer wg.Done()
			if _, err := d.Dispatch(context.Background(), ticketID, 10); err != nil {
				t.Errorf("dispatch %d failed: %v", ticketID, err)
			}
		}(int64(100 + i))
	}
	wg.Wait()

	counts := make(map[int64]int)
	for i := 0; i < tickets; i++ {
		agentID, ok := store.assigned(int64(100 + i))
		if !ok {
			t.Fatalf("ticket %d never assigned", 100+i)
		}
		counts[agentID]++
	}
	if counts[1] != tickets/2 || counts[2] != tickets/2 {
		t.Errorf("expected an even split across both agents, got %v", counts)
	}
}
