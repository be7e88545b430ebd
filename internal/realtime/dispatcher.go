package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/observability"
)

// ErrNoEligibleAgents is the normal outcome when a company has no connected
// agents at dispatch time. The ticket stays unassigned and no state mutates.
var ErrNoEligibleAgents = errors.New("no eligible agents connected")

// ErrAssignmentWrite marks a dispatch where an agent was selected but the
// store write failed. The rotation cursor has already advanced.
var ErrAssignmentWrite = errors.New("assignment write failed")

// fallbackAgentName is used when the selected agent disconnects between
// selection and name resolution.
const fallbackAgentName = "Assigned agent"

// AssignmentStore commits ticket assignments to the external ticket store.
type AssignmentStore interface {
	AssignAgent(ctx context.Context, ticketID, agentID int64) error
	AssignedAgent(ctx context.Context, ticketID int64) (*int64, error)
}

// Assignment is the result of a successful dispatch.
type Assignment struct {
	AgentID   int64
	AgentName string
}

// Dispatcher assigns newly created tickets to connected agents with
// round-robin fairness. The rotation cursor is keyed by the identity of the
// last assigned agent rather than a roster index, so rotation order stays
// stable when the roster grows or shrinks between dispatches. Cursor state is
// process-lifetime only and rebuilt from scratch on restart.
type Dispatcher struct {
	registry *Registry
	store    AssignmentStore
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu           sync.Mutex
	tenantLocks  map[int64]*sync.Mutex
	lastAssigned map[int64]int64
}

// NewDispatcher builds a dispatcher over the given registry and store.
func NewDispatcher(registry *Registry, store AssignmentStore, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry:     registry,
		store:        store,
		metrics:      metrics,
		logger:       logger,
		tenantLocks:  make(map[int64]*sync.Mutex),
		lastAssigned: make(map[int64]int64),
	}
}

func (d *Dispatcher) tenantLock(companyID int64) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock := d.tenantLocks[companyID]
	if lock == nil {
		lock = &sync.Mutex{}
		d.tenantLocks[companyID] = lock
	}
	return lock
}

// Dispatch selects the next eligible agent for the company and commits the
// assignment. It returns ErrNoEligibleAgents when nobody can take the ticket;
// any other error means the selection happened but the store write failed.
// The cursor is not rolled back on a failed write, so the next dispatch
// continues the rotation past the failed agent.
func (d *Dispatcher) Dispatch(ctx context.Context, ticketID, companyID int64) (*Assignment, error) {
	lock := d.tenantLock(companyID)

	// Roster snapshot and cursor advance are one critical section per
	// company; the store write stays outside so a slow database cannot
	// serialize dispatches across the whole tenant.
	lock.Lock()
	eligible := d.registry.EligibleAgents(companyID, domain.Role.IsAgent)
	if len(eligible) == 0 {
		lock.Unlock()
		d.metrics.RecordDispatch("no_agents")
		d.logger.Info("dispatch found no eligible agents",
			zap.Int64("ticket_id", ticketID),
			zap.Int64("company_id", companyID))
		return nil, ErrNoEligibleAgents
	}
	agentID := d.nextAgentLocked(companyID, eligible)
	lock.Unlock()

	if err := d.store.AssignAgent(ctx, ticketID, agentID); err != nil {
		d.metrics.RecordDispatch("failed")
		return nil, fmt.Errorf("%w: ticket %d: %w", ErrAssignmentWrite, ticketID, err)
	}

	// Defensive re-read; a mismatch is logged, not treated as failure.
	if written, err := d.store.AssignedAgent(ctx, ticketID); err != nil {
		d.logger.Warn("assignment verification read failed",
			zap.Int64("ticket_id", ticketID), zap.Error(err))
	} else if written == nil || *written != agentID {
		d.logger.Warn("assignment verification mismatch",
			zap.Int64("ticket_id", ticketID),
			zap.Int64("expected_agent_id", agentID))
	}

	name, online := d.registry.DisplayName(agentID)
	if !online {
		name = fallbackAgentName
	}

	d.metrics.RecordDispatch("assigned")
	d.logger.Info("ticket assigned",
		zap.Int64("ticket_id", ticketID),
		zap.Int64("company_id", companyID),
		zap.Int64("agent_id", agentID),
		zap.String("agent_name", name))
	return &Assignment{AgentID: agentID, AgentName: name}, nil
}

// nextAgentLocked picks the eligible agent strictly after the last assigned
// identity's current position, wrapping to the start. An unset or departed
// identity yields the first roster agent. Caller holds the tenant lock.
func (d *Dispatcher) nextAgentLocked(companyID int64, eligible []int64) int64 {
	d.mu.Lock()
	last, ok := d.lastAssigned[companyID]
	d.mu.Unlock()

	next := eligible[0]
	if ok {
		for i, uid := range eligible {
			if uid == last {
				next = eligible[(i+1)%len(eligible)]
				break
			}
		}
	}

	d.mu.Lock()
	d.lastAssigned[companyID] = next
	d.mu.Unlock()
	return next
}
