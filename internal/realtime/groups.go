package realtime

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

func companyGroup(companyID int64) string {
	return fmt.Sprintf("company:%d", companyID)
}

func ticketGroup(ticketID int64) string {
	return fmt.Sprintf("ticket:%d", ticketID)
}

// Broadcaster maps group identifiers (tenant or ticket scope) to the set of
// currently subscribed sessions. Publish delivers to the snapshot of
// subscribers taken at publish time; sessions joining mid-publish are not
// guaranteed delivery.
type Broadcaster struct {
	mu       sync.RWMutex
	groups   map[string]map[*Session]struct{}
	byMember map[*Session]map[string]struct{}
	logger   *zap.Logger
}

// NewBroadcaster builds an empty broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		groups:   make(map[string]map[*Session]struct{}),
		byMember: make(map[*Session]map[string]struct{}),
		logger:   logger,
	}
}

// Join subscribes a session to a group. Idempotent.
func (b *Broadcaster) Join(group string, s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.groups[group] == nil {
		b.groups[group] = make(map[*Session]struct{})
	}
	b.groups[group][s] = struct{}{}
	if b.byMember[s] == nil {
		b.byMember[s] = make(map[string]struct{})
	}
	b.byMember[s][group] = struct{}{}
}

// Leave removes a session from one group.
func (b *Broadcaster) Leave(group string, s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(group, s)
}

// LeaveAll removes a session from every group it joined.
func (b *Broadcaster) LeaveAll(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for group := range b.byMember[s] {
		b.leaveLocked(group, s)
	}
}

func (b *Broadcaster) leaveLocked(group string, s *Session) {
	if members := b.groups[group]; members != nil {
		delete(members, s)
		if len(members) == 0 {
			delete(b.groups, group)
		}
	}
	if groups := b.byMember[s]; groups != nil {
		delete(groups, group)
		if len(groups) == 0 {
			delete(b.byMember, s)
		}
	}
}

// Publish sends an event to every current member of the group except the
// excluded session (pass nil to reach everyone). Send failures are logged
// and do not stop delivery to the remaining members.
func (b *Broadcaster) Publish(group, event string, payload any, except *Session) {
	b.mu.RLock()
	members := make([]*Session, 0, len(b.groups[group]))
	for s := range b.groups[group] {
		if s != except {
			members = append(members, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range members {
		if err := s.Send(event, payload); err != nil {
			b.logger.Warn("group send failed",
				zap.String("group", group),
				zap.String("event", event),
				zap.Int64("user_id", s.UserID),
				zap.Error(err))
		}
	}
}

// Members reports the current subscriber count of a group.
func (b *Broadcaster) Members(group string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[group])
}
