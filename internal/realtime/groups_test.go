package realtime

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func newTestSession(userID int64, sink Sink) *Session {
	return &Session{UserID: userID, CompanyID: 10, sink: sink}
}

func TestBroadcasterPublish(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())

	sink1, sink2 := &fakeSink{}, &fakeSink{}
	s1 := newTestSession(1, sink1)
	s2 := newTestSession(2, sink2)
	b.Join("ticket:7", s1)
	b.Join("ticket:7", s2)

	b.Publish("ticket:7", "ping", "payload", nil)

	if len(sink1.recorded("ping")) != 1 || len(sink2.recorded("ping")) != 1 {
		t.Error("publish should reach every member")
	}
}

func TestBroadcasterPublishExcludesSender(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())

	sink1, sink2 := &fakeSink{}, &fakeSink{}
	s1 := newTestSession(1, sink1)
	s2 := newTestSession(2, sink2)
	b.Join("ticket:7", s1)
	b.Join("ticket:7", s2)

	b.Publish("ticket:7", "ping", nil, s1)

	if len(sink1.recorded("ping")) != 0 {
		t.Error("excluded session received the event")
	}
	if len(sink2.recorded("ping")) != 1 {
		t.Error("other member missed the event")
	}
}

func TestBroadcasterSendFailureDoesNotStopDelivery(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())

	broken := &fakeSink{sendErr: errors.New("connection gone")}
	healthy := &fakeSink{}
	b.Join("ticket:7", newTestSession(1, broken))
	b.Join("ticket:7", newTestSession(2, healthy))

	b.Publish("ticket:7", "ping", nil, nil)

	if len(healthy.recorded("ping")) != 1 {
		t.Error("a failing member must not block delivery to the rest")
	}
}

func TestBroadcasterLeaveAll(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())

	sink := &fakeSink{}
	s := newTestSession(1, sink)
	b.Join("ticket:7", s)
	b.Join("company:10", s)
	if b.Members("ticket:7") != 1 || b.Members("company:10") != 1 {
		t.Fatal("join did not register membership")
	}

	b.LeaveAll(s)
	if b.Members("ticket:7") != 0 || b.Members("company:10") != 0 {
		t.Error("LeaveAll left stale memberships")
	}

	b.Publish("ticket:7", "ping", nil, nil)
	if len(sink.recorded("ping")) != 0 {
		t.Error("departed session still receives events")
	}
}

func TestBroadcasterJoinIdempotent(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())

	sink := &fakeSink{}
	s := newTestSession(1, sink)
	b.Join("ticket:7", s)
	b.Join("ticket:7", s)

	b.Publish("ticket:7", "ping", nil, nil)
	if got := len(sink.recorded("ping")); got != 1 {
		t.Errorf("double join caused %d deliveries, want 1", got)
	}
}
