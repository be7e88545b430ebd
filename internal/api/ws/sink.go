package ws

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/spec-kit/support-desk/internal/realtime"
)

// connSink adapts a websocket connection to the realtime.Sink contract.
// All writes go through one mutex; the keepalive pinger shares it.
type connSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnSink(conn *websocket.Conn) *connSink {
	return &connSink{conn: conn}
}

func (s *connSink) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(realtime.Envelope{Event: event, Data: data})
}

func (s *connSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
