package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
)

// ErrInvalidIdentity is returned when an announce payload misses required
// fields. Nothing is mutated in that case.
var ErrInvalidIdentity = errors.New("user id and company id are required")

// Registry tracks which users are currently online and keeps the per-company
// ordered roster that defines round-robin rotation order. It exclusively owns
// every Session: announce creates or replaces one, Remove destroys it.
//
// Roster invariant: a user id appears in at most one company roster and at
// most once within it. Placement order is connection order and survives
// re-announcements by the same user; announcing under a different company
// evicts the user from the previous company's roster first.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	roster   map[int64][]int64
	members  map[int64]map[int64]struct{}

	groups *Broadcaster
	bus    events.Dispatcher
	logger *zap.Logger
}

// NewRegistry builds an empty registry publishing presence to the given
// broadcaster and, when bus is non-nil, mirroring connect/disconnect events
// onto the internal event bus.
func NewRegistry(groups *Broadcaster, bus events.Dispatcher, logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		roster:   make(map[int64][]int64),
		members:  make(map[int64]map[int64]struct{}),
		groups:   groups,
		bus:      bus,
		logger:   logger,
	}
}

// Announce registers (or re-registers) a connection under the given identity.
// On a duplicate user id the last writer wins: the previous session leaves
// its groups and its transport is closed. The roster slot is kept for a
// same-company re-announce and moved when the company changes, with the old
// company told the user disconnected. The new session joins the company
// group, the rest of the company is told the user connected, and the caller
// receives a snapshot of who else is online.
func (r *Registry) Announce(id Identity, sink Sink) (*Session, error) {
	if id.UserID == 0 || id.CompanyID == 0 {
		return nil, ErrInvalidIdentity
	}

	sess := &Session{
		UserID:    id.UserID,
		CompanyID: id.CompanyID,
		Role:      id.RoleID,
		Name:      id.Name,
		sink:      sink,
	}

	r.mu.Lock()
	prev := r.sessions[id.UserID]
	r.sessions[id.UserID] = sess

	// A user id lives in at most one company roster. Switching companies
	// evicts the old entry before the new placement is made.
	if prev != nil && prev.CompanyID != id.CompanyID {
		r.dropFromRosterLocked(prev.CompanyID, id.UserID)
	}

	if _, present := r.members[id.CompanyID][id.UserID]; !present {
		if r.members[id.CompanyID] == nil {
			r.members[id.CompanyID] = make(map[int64]struct{})
		}
		r.members[id.CompanyID][id.UserID] = struct{}{}
		r.roster[id.CompanyID] = append(r.roster[id.CompanyID], id.UserID)
	}

	snapshot := make([]Presence, 0, len(r.roster[id.CompanyID]))
	for _, uid := range r.roster[id.CompanyID] {
		if uid == id.UserID {
			continue
		}
		if other := r.sessions[uid]; other != nil {
			snapshot = append(snapshot, other.presence())
		}
	}
	r.mu.Unlock()

	if prev != nil {
		r.groups.LeaveAll(prev)
		// A re-announce over the same transport must not close it.
		if prev.sink != sink {
			_ = prev.sink.Close()
		}
		if prev.CompanyID != id.CompanyID {
			r.groups.Publish(companyGroup(prev.CompanyID), EventUserDisconnected, prev.presence(), nil)
			r.publishPresence(events.EventUserOffline, prev.CompanyID, prev.presence())
		}
		r.logger.Info("session replaced",
			zap.Int64("user_id", id.UserID),
			zap.Int64("company_id", id.CompanyID))
	}

	r.groups.Join(companyGroup(id.CompanyID), sess)
	r.groups.Publish(companyGroup(id.CompanyID), EventUserConnected, sess.presence(), sess)
	r.publishPresence(events.EventUserConnected, id.CompanyID, sess.presence())

	if err := sess.Send(EventOnlineUsers, snapshot); err != nil {
		r.logger.Warn("roster snapshot send failed",
			zap.Int64("user_id", id.UserID), zap.Error(err))
	}

	r.logger.Info("user announced",
		zap.Int64("user_id", id.UserID),
		zap.Int64("company_id", id.CompanyID),
		zap.Int16("role_id", int16(id.RoleID)))
	return sess, nil
}

// JoinTicketGroup subscribes the session to a ticket-scoped group. Idempotent.
// There is no eligibility check; any announced connection may join.
func (r *Registry) JoinTicketGroup(sess *Session, ticketID int64) {
	if sess == nil {
		return
	}
	r.groups.Join(ticketGroup(ticketID), sess)
}

// Remove tears down a session on disconnect. Safe to call for sessions that
// never completed an announce (nil) and for sessions that were replaced by a
// newer announce; those cases leave the roster untouched.
func (r *Registry) Remove(sess *Session) {
	if sess == nil {
		return
	}

	r.groups.LeaveAll(sess)

	r.mu.Lock()
	if r.sessions[sess.UserID] != sess {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sess.UserID)
	r.dropFromRosterLocked(sess.CompanyID, sess.UserID)
	r.mu.Unlock()

	r.groups.Publish(companyGroup(sess.CompanyID), EventUserDisconnected, sess.presence(), nil)
	r.publishPresence(events.EventUserOffline, sess.CompanyID, sess.presence())
	r.logger.Info("user disconnected",
		zap.Int64("user_id", sess.UserID),
		zap.Int64("company_id", sess.CompanyID))
}

// dropFromRosterLocked removes a user from one company's roster and
// membership set, pruning empty entries. Caller holds r.mu.
func (r *Registry) dropFromRosterLocked(companyID, userID int64) {
	delete(r.members[companyID], userID)
	if len(r.members[companyID]) == 0 {
		delete(r.members, companyID)
	}
	ids := r.roster[companyID]
	for i, uid := range ids {
		if uid == userID {
			r.roster[companyID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.roster[companyID]) == 0 {
		delete(r.roster, companyID)
	}
}

// publishPresence mirrors a connect/disconnect onto the internal event bus.
func (r *Registry) publishPresence(eventType events.EventType, companyID int64, p Presence) {
	if r.bus == nil {
		return
	}
	_ = r.bus.Publish(context.Background(), events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		CompanyID: companyID,
		Timestamp: time.Now(),
		Payload: events.PresencePayload{
			UserID: p.UserID,
			Name:   p.Name,
			RoleID: int16(p.RoleID),
		},
	})
}

// EligibleAgents returns the company roster filtered by the predicate,
// preserving roster order. The result is a point-in-time snapshot; it may go
// stale as soon as the registry lock is released.
func (r *Registry) EligibleAgents(companyID int64, pred func(domain.Role) bool) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eligible []int64
	for _, uid := range r.roster[companyID] {
		sess := r.sessions[uid]
		if sess != nil && pred(sess.Role) {
			eligible = append(eligible, uid)
		}
	}
	return eligible
}

// DisplayName resolves a connected user's name. The second return is false
// when the user is no longer online.
func (r *Registry) DisplayName(userID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[userID]
	if sess == nil {
		return "", false
	}
	return sess.Name, true
}

// OnlineCount reports the roster size for a company.
func (r *Registry) OnlineCount(companyID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.roster[companyID])
}
