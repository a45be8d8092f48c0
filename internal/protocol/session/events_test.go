package session

import (
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/testutil/testlog"
)

type recordingEvents struct {
	mu     sync.Mutex
	opened []uuid.UUID
	lost   []uuid.UUID
	during func()
}

func (r *recordingEvents) NewSession(s *Session, info Information) {
	r.mu.Lock()
	r.opened = append(r.opened, info.SessionID)
	during := r.during
	r.mu.Unlock()
	if during != nil {
		during()
	}
}

func (r *recordingEvents) LostSession(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = append(r.lost, id)
}

func TestNotifierDefersLostUntilAnnounced(t *testing.T) {
	testlog.Start(t)
	events := &recordingEvents{}
	n := NewNotifier(events)
	s := newTestSession(t, newPipe(), mustSet(t, feature.OriginCentralSystem, nil), DefaultConfig(), nil)
	events.during = func() {
		n.Closed(s, nil)
		if len(events.lost) != 0 {
			t.Errorf("LostSession delivered before NewSession returned")
		}
	}
	n.Opened(s)
	n.Closed(s, nil)
	if len(events.opened) != 1 || len(events.lost) != 1 || events.lost[0] != s.ID() {
		t.Fatalf("unexpected callbacks opened=%v lost=%v", events.opened, events.lost)
	}
}

func TestNotifierSkipsLostForUnannouncedSession(t *testing.T) {
	testlog.Start(t)
	events := &recordingEvents{}
	n := NewNotifier(events)
	s := newTestSession(t, newPipe(), mustSet(t, feature.OriginCentralSystem, nil), DefaultConfig(), nil)
	n.Closed(s, nil)
	if len(events.lost) != 0 {
		t.Fatalf("session never announced must not be reported lost")
	}
}
