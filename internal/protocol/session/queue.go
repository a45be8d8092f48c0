package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/danmuck/ocppctl/internal/protocol"
)

var (
	ErrTimeout             = errors.New("session: call timed out")
	ErrSessionClosed       = errors.New("session: session closed")
	ErrDuplicateCallID     = errors.New("session: duplicate call id")
	ErrTooManyPendingCalls = errors.New("session: too many pending calls")
	ErrEmptyCallID         = errors.New("session: empty call id")
)

// PendingCall is a read-only view of one outstanding outbound call.
type PendingCall struct {
	ID       string
	Action   string
	QueuedAt time.Time
}

// Handle is the completion slot for one enqueued call. It resolves exactly
// once: with a payload, a *protocol.CallError, ErrTimeout, ErrSessionClosed
// or a context error.
type Handle struct {
	PendingCall

	done    chan struct{}
	payload []byte
	err     error
	// expiry is set under the queue lock while the entry is live.
	expiry clock.Timer
}

// Done is closed once the handle has resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the resolved outcome. It must only be read after Done.
func (h *Handle) Result() ([]byte, error) {
	return h.payload, h.err
}

func (h *Handle) resolve(payload []byte, err error) {
	if h.expiry != nil {
		h.expiry.Stop()
	}
	h.payload = payload
	h.err = err
	close(h.done)
}

// CallQueue correlates outbound calls with their replies by call id. Every
// resolution happens under mu after the entry is removed, which is what
// makes completion, timeout and shutdown mutually exclusive.
type CallQueue struct {
	mu     sync.Mutex
	clock  clock.Clock
	limit  int
	items  map[string]*Handle
	closed error
}

// NewCallQueue builds a queue. limit caps outstanding calls; zero means
// unlimited.
func NewCallQueue(clk clock.Clock, limit int) *CallQueue {
	if clk == nil {
		clk = clock.WallClock
	}
	if limit < 0 {
		limit = 0
	}
	return &CallQueue{
		clock: clk,
		limit: limit,
		items: make(map[string]*Handle),
	}
}

func (q *CallQueue) Enqueue(id, action string) (*Handle, error) {
	key := strings.TrimSpace(id)
	if key == "" {
		return nil, ErrEmptyCallID
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed != nil {
		return nil, q.closed
	}
	if _, ok := q.items[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCallID, key)
	}
	if q.limit > 0 && len(q.items) >= q.limit {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyPendingCalls, q.limit)
	}
	h := &Handle{
		PendingCall: PendingCall{ID: key, Action: action, QueuedAt: q.clock.Now()},
		done:        make(chan struct{}),
	}
	q.items[key] = h
	return h, nil
}

// Complete resolves id with a confirmation payload. It reports false for an
// unknown id: a stray or late reply.
func (q *CallQueue) Complete(id string, payload []byte) bool {
	h, ok := q.take(id)
	if !ok {
		return false
	}
	h.resolve(payload, nil)
	return true
}

// CompleteWithError resolves id with a *protocol.CallError.
func (q *CallQueue) CompleteWithError(id string, code protocol.ErrorCode, description string, details []byte) bool {
	h, ok := q.take(id)
	if !ok {
		return false
	}
	h.resolve(nil, &protocol.CallError{ID: h.ID, Code: code, Description: description, Details: details})
	return true
}

// Remove resolves id with cause. Used when the call never reached the wire.
func (q *CallQueue) Remove(id string, cause error) bool {
	h, ok := q.take(id)
	if !ok {
		return false
	}
	h.resolve(nil, cause)
	return true
}

// take removes and returns the entry. The caller resolves it; resolve is
// called with mu released but only by the goroutine that won take.
func (q *CallQueue) take(id string) (*Handle, bool) {
	key := strings.TrimSpace(id)
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.items[key]
	if !ok {
		return nil, false
	}
	delete(q.items, key)
	return h, true
}

// takeHandle removes h only if it is still the live entry for its id.
func (q *CallQueue) takeHandle(h *Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, ok := q.items[h.ID]; !ok || cur != h {
		return false
	}
	delete(q.items, h.ID)
	return true
}

// Arm starts the expiry of a live entry: once timeout elapses the entry is
// removed and resolved with ErrTimeout, awaited or not. Arming twice, arming
// a resolved entry or a non-positive timeout is a no-op.
func (q *CallQueue) Arm(h *Handle, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, ok := q.items[h.ID]; !ok || cur != h || h.expiry != nil {
		return
	}
	h.expiry = q.clock.AfterFunc(timeout, func() {
		if q.takeHandle(h) {
			h.resolve(nil, fmt.Errorf("%w: %s %s after %s", ErrTimeout, h.Action, h.ID, timeout))
		}
	})
}

// Await blocks the calling goroutine until h resolves or ctx ends. It arms
// h with timeout if nothing has yet; a timeout removes the entry so a late
// reply is treated as unknown. A non-positive timeout on an unarmed entry
// waits without bound.
func (q *CallQueue) Await(ctx context.Context, h *Handle, timeout time.Duration) ([]byte, error) {
	q.Arm(h, timeout)
	select {
	case <-h.done:
	case <-ctx.Done():
		if q.takeHandle(h) {
			h.resolve(nil, ctx.Err())
		}
		<-h.done
	}
	return h.Result()
}

// FailAll resolves every pending entry with err and refuses new entries
// from then on. It returns the number of entries failed.
func (q *CallQueue) FailAll(err error) int {
	if err == nil {
		err = ErrSessionClosed
	}
	q.mu.Lock()
	if q.closed == nil {
		q.closed = err
	}
	items := q.items
	q.items = make(map[string]*Handle)
	q.mu.Unlock()

	for _, h := range items {
		h.resolve(nil, err)
	}
	return len(items)
}

func (q *CallQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *CallQueue) Get(id string) (PendingCall, bool) {
	key := strings.TrimSpace(id)
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.items[key]
	if !ok {
		return PendingCall{}, false
	}
	return h.PendingCall, true
}

func (q *CallQueue) List() []PendingCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingCall, 0, len(q.items))
	for _, h := range q.items {
		out = append(out, h.PendingCall)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out
}
