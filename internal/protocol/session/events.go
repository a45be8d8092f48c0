package session

import (
	"sync"

	"github.com/google/uuid"
)

// Notifier orders the listener callbacks for one session. LostSession is
// delivered exactly once and never before NewSession has returned, even
// when the connection drops while the application is still handling
// NewSession.
type Notifier struct {
	events ListenerEvents

	mu        sync.Mutex
	announced bool
	lost      bool
	reported  bool
	id        uuid.UUID
}

func NewNotifier(events ListenerEvents) *Notifier {
	return &Notifier{events: events}
}

// Opened reports s to the application.
func (n *Notifier) Opened(s *Session) {
	n.events.NewSession(s, s.Information())
	n.mu.Lock()
	n.announced = true
	fire := n.lost && !n.reported
	if fire {
		n.reported = true
	}
	id := n.id
	n.mu.Unlock()
	if fire {
		n.events.LostSession(id)
	}
}

// Closed is wired to Params.OnClosed.
func (n *Notifier) Closed(s *Session, _ error) {
	n.mu.Lock()
	n.lost = true
	n.id = s.ID()
	fire := n.announced && !n.reported
	if fire {
		n.reported = true
	}
	n.mu.Unlock()
	if fire {
		n.events.LostSession(s.ID())
	}
}
