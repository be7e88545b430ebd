package realtime

import "github.com/spec-kit/support-desk/internal/domain"

// Sink pushes events to one connected client. Implementations must be safe
// for concurrent use; the websocket sink serializes writes with a mutex.
type Sink interface {
	Send(event string, payload any) error
	Close() error
}

// Session is one live connection after identity announcement. It is owned by
// the Registry for its lifetime: created on announce, torn down on disconnect
// or replaced when the same user id announces again.
type Session struct {
	UserID    int64
	CompanyID int64
	Role      domain.Role
	Name      string

	sink Sink
}

// Send pushes an event to this session's client.
func (s *Session) Send(event string, payload any) error {
	return s.sink.Send(event, payload)
}

// SendError notifies only this session's client of a failure.
func (s *Session) SendError(message string) {
	_ = s.sink.Send(EventError, ErrorPayload{Message: message})
}

func (s *Session) presence() Presence {
	return Presence{UserID: s.UserID, Name: s.Name, RoleID: s.Role}
}
