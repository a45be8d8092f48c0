package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/observability"
	"github.com/danmuck/ocppctl/internal/protocol"
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrNotConnected     = errors.New("session: not connected")
	ErrInvalidState     = errors.New("session: invalid state transition")
	ErrPayloadInvalid   = errors.New("session: payload failed validation")
	ErrMalformedReply   = errors.New("session: malformed confirmation payload")
	ErrHandlerFailed    = errors.New("session: handler failed")
	ErrMissingCodec     = errors.New("session: codec required")
	ErrMissingTransport = errors.New("session: communicator required")
)

// Communicator is the transport side of a session. Transmit delivers one
// encoded frame; Close releases the underlying connection.
type Communicator interface {
	Transmit(ctx context.Context, data []byte) error
	Close() error
}

// Information is the immutable snapshot handed to the application when a
// session opens.
type Information struct {
	SessionID      uuid.UUID
	Identifier     string
	RemoteAddress  string
	ProxiedAddress string
	Version        protocol.Version
	Transport      string
}

// ListenerEvents is implemented by the application owning a listener.
// NewSession is called once per accepted connection and LostSession once
// when that session ends.
type ListenerEvents interface {
	NewSession(s *Session, info Information)
	LostSession(id uuid.UUID)
}

type Params struct {
	// ID is generated when zero.
	ID           uuid.UUID
	Information  Information
	Codec        protocol.Codec
	Communicator Communicator
	Features     feature.Set
	Config       Config
	Clock        clock.Clock
	// OnClosed runs once when the session reaches Closed or Faulted.
	OnClosed func(s *Session, cause error)
}

type inboundItem struct {
	call     *protocol.Call
	rejected *protocol.CallError
}

// Session is one bidirectional OCPP RPC channel. Outbound calls may be
// issued from any goroutine. Inbound Calls run one at a time on the
// session's dispatch goroutine, in arrival order; replies are matched in
// OnInbound directly so a handler may itself await an outbound call.
type Session struct {
	id       uuid.UUID
	info     Information
	cfg      Config
	codec    protocol.Codec
	comm     Communicator
	features feature.Set
	clock    clock.Clock
	queue    *CallQueue
	onClosed func(*Session, error)

	mu     sync.Mutex
	state  State
	opened bool
	cause  error

	inbound chan inboundItem
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(p Params) (*Session, error) {
	if p.Codec == nil {
		return nil, ErrMissingCodec
	}
	if p.Communicator == nil {
		return nil, ErrMissingTransport
	}
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	cfg := p.Config.WithDefaults()
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	info := p.Information
	info.SessionID = id
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       id,
		info:     info,
		cfg:      cfg,
		codec:    p.Codec,
		comm:     p.Communicator,
		features: p.Features,
		clock:    p.Clock,
		queue:    NewCallQueue(p.Clock, cfg.MaxPendingCalls),
		onClosed: p.OnClosed,
		state:    StateConnecting,
		inbound:  make(chan inboundItem, cfg.InboundBacklog),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Open moves a connecting session to Open and starts inbound dispatch.
func (s *Session) Open() error {
	s.mu.Lock()
	if s.state != StateConnecting {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: open from %s", ErrInvalidState, state)
	}
	s.state = StateOpen
	s.opened = true
	s.mu.Unlock()

	observability.SessionOpened(s.info.Transport, string(s.info.Version))
	go s.dispatchLoop()
	log.Debug().
		Str("session", s.id.String()).
		Str("identifier", s.info.Identifier).
		Str("version", string(s.info.Version)).
		Msg("session.Session.Open opened")
	return nil
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Version() protocol.Version {
	return s.info.Version
}

func (s *Session) Information() Information {
	return s.info
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the cause passed to Fault, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Done is closed when the session starts shutting down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) PendingCount() int {
	return s.queue.Len()
}

func (s *Session) PendingCalls() []PendingCall {
	return s.queue.List()
}

// Pending is the caller's handle on one outbound call.
type Pending struct {
	s      *Session
	h      *Handle
	f      feature.Feature
	sentAt time.Time
	record sync.Once
}

func (p *Pending) ID() string {
	return p.h.ID
}

func (p *Pending) Action() string {
	return p.f.Action
}

// Done is closed once the call has resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.h.Done()
}

// Await blocks until the confirmation arrives, the peer answers with a
// CallError (returned as *protocol.CallError), the configured call timeout
// elapses (ErrTimeout), the session closes (ErrSessionClosed) or ctx ends.
func (p *Pending) Await(ctx context.Context) (feature.Confirmation, error) {
	payload, err := p.s.queue.Await(ctx, p.h, p.s.cfg.CallTimeout)
	p.record.Do(func() {
		observability.RecordOutboundCall(string(p.s.info.Version), p.f.Action, outcomeLabel(err), p.s.clock.Now().Sub(p.sentAt))
	})
	if err != nil {
		return nil, err
	}
	conf := p.f.NewConfirmation()
	if err := p.s.codec.UnmarshalPayload(payload, conf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedReply, p.f.Action, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s confirmation: %v", ErrPayloadInvalid, p.f.Action, err)
	}
	return conf, nil
}

func outcomeLabel(err error) string {
	var callErr *protocol.CallError
	switch {
	case err == nil:
		return "result"
	case errors.As(err, &callErr):
		return "error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrSessionClosed):
		return "closed"
	default:
		return "canceled"
	}
}

// Send resolves req through the outbound registry, validates it, registers
// a fresh call id and transmits the Call. It never queues for later
// delivery: a session that is not Open fails with ErrNotConnected.
func (s *Session) Send(ctx context.Context, req feature.Request) (*Pending, error) {
	if st := s.State(); st != StateOpen {
		return nil, fmt.Errorf("%w: state %s", ErrNotConnected, st)
	}
	if s.features.Outbound == nil {
		return nil, fmt.Errorf("%w: no outbound features", feature.ErrUnknownAction)
	}
	f, err := s.features.Outbound.Resolve(req)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, f.Action, err)
	}
	payload, err := s.codec.MarshalPayload(req)
	if err != nil {
		return nil, fmt.Errorf("session: marshal %s: %w", f.Action, err)
	}

	id := uuid.NewString()
	h, err := s.queue.Enqueue(id, f.Action)
	if err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		return nil, err
	}
	wire, err := s.codec.Encode(&protocol.Call{ID: id, Action: f.Action, Payload: payload})
	if err != nil {
		s.queue.Remove(id, err)
		return nil, fmt.Errorf("session: encode %s: %w", f.Action, err)
	}
	sentAt := s.clock.Now()
	s.queue.Arm(h, s.cfg.CallTimeout)
	if err := s.comm.Transmit(ctx, wire); err != nil {
		s.queue.Remove(id, err)
		return nil, fmt.Errorf("session: transmit %s: %w", f.Action, err)
	}
	return &Pending{s: s, h: h, f: f, sentAt: sentAt}, nil
}

// Call is Send followed by Await.
func (s *Session) Call(ctx context.Context, req feature.Request) (feature.Confirmation, error) {
	p, err := s.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.Await(ctx)
}

// OnInbound is the transport's entry point for one received frame. Replies
// are matched immediately; Calls are queued for the dispatch goroutine.
// Frames that cannot be decoded are dropped without affecting the session.
func (s *Session) OnInbound(data []byte) {
	if st := s.State(); st != StateOpen {
		log.Debug().Str("session", s.id.String()).Str("state", st.String()).Msg("session.Session.OnInbound dropped frame")
		return
	}
	msg, err := s.codec.Decode(data)
	if err != nil {
		s.onDecodeError(err)
		return
	}
	switch m := msg.(type) {
	case *protocol.Call:
		s.enqueueInbound(inboundItem{call: m})
	case *protocol.CallResult:
		if !s.queue.Complete(m.ID, m.Payload) {
			s.onStray(m.ID)
		}
	case *protocol.CallError:
		if !s.queue.CompleteWithError(m.ID, m.Code, m.Description, m.Details) {
			s.onStray(m.ID)
		}
	}
}

func (s *Session) onDecodeError(err error) {
	observability.RecordDropped(string(s.info.Version), "decode")
	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) && decodeErr.Answerable() {
		log.Warn().Str("session", s.id.String()).Str("id", decodeErr.MessageID).Err(err).Msg("session.Session.OnInbound malformed call")
		s.enqueueInbound(inboundItem{
			rejected: protocol.NewCallError(decodeErr.MessageID, protocol.FormatViolationFor(s.info.Version), "malformed call"),
		})
		return
	}
	log.Warn().Str("session", s.id.String()).Err(err).Msg("session.Session.OnInbound dropped malformed frame")
}

func (s *Session) onStray(id string) {
	observability.RecordDropped(string(s.info.Version), "stray_reply")
	log.Debug().Str("session", s.id.String()).Str("id", id).Msg("session.Session.OnInbound discarded reply for unknown call")
}

func (s *Session) enqueueInbound(item inboundItem) {
	select {
	case s.inbound <- item:
	case <-s.done:
	default:
		id := ""
		if item.call != nil {
			id = item.call.ID
		} else if item.rejected != nil {
			id = item.rejected.ID
		}
		log.Warn().Str("session", s.id.String()).Str("id", id).Msg("session.Session.OnInbound inbound backlog full")
		s.transmit(protocol.NewCallError(id, protocol.InternalError, "inbound backlog full"))
	}
}

func (s *Session) dispatchLoop() {
	for {
		select {
		case <-s.done:
			return
		case item := <-s.inbound:
			if item.rejected != nil {
				s.transmit(item.rejected)
				continue
			}
			s.dispatch(item.call)
		}
	}
}

func (s *Session) dispatch(call *protocol.Call) {
	start := s.clock.Now()
	reply := s.handleCall(call)
	code := ""
	if callErr, ok := reply.(*protocol.CallError); ok {
		code = string(callErr.Code)
	}
	observability.RecordInboundCall(string(s.info.Version), call.Action, code, s.clock.Now().Sub(start))
	s.transmit(reply)
}

// handleCall always produces exactly one reply for call.
func (s *Session) handleCall(call *protocol.Call) protocol.Message {
	var (
		f  feature.Feature
		ok bool
	)
	if s.features.Inbound != nil {
		f, ok = s.features.Inbound.Lookup(call.Action)
	}
	if !ok {
		return protocol.NewCallError(call.ID, protocol.NotImplemented, "Requested Action is not known by receiver")
	}
	if f.Handler == nil {
		return protocol.NewCallError(call.ID, protocol.NotSupported, "Requested Action is recognized but not supported by the receiver")
	}

	req := f.NewRequest()
	if err := s.codec.UnmarshalPayload(call.Payload, req); err != nil {
		log.Warn().Str("session", s.id.String()).Str("action", call.Action).Err(err).Msg("session.Session.dispatch undecodable payload")
		return protocol.NewCallError(call.ID, protocol.FormatViolationFor(s.info.Version), "Payload for Action is syntactically incorrect")
	}
	if err := req.Validate(); err != nil {
		log.Warn().Str("session", s.id.String()).Str("action", call.Action).Err(err).Msg("session.Session.dispatch invalid payload")
		return protocol.NewCallError(call.ID, protocol.FormatViolationFor(s.info.Version), "Payload for Action is not conform the PDU structure")
	}

	conf, err := s.invoke(f, req)
	if err != nil {
		var handlerErr *feature.HandlerError
		if errors.As(err, &handlerErr) && handlerErr.Code != "" {
			return protocol.NewCallError(call.ID, handlerErr.Code, handlerErr.Description)
		}
		log.Warn().Str("session", s.id.String()).Str("action", call.Action).Err(err).Msg("session.Session.dispatch handler failed")
		return protocol.NewCallError(call.ID, protocol.InternalError, "An internal error occurred and the receiver was not able to process the requested Action")
	}
	payload, err := s.codec.MarshalPayload(conf)
	if err != nil {
		log.Error().Str("session", s.id.String()).Str("action", call.Action).Err(err).Msg("session.Session.dispatch marshal confirmation")
		return protocol.NewCallError(call.ID, protocol.InternalError, "confirmation could not be encoded")
	}
	return &protocol.CallResult{ID: call.ID, Payload: payload}
}

func (s *Session) invoke(f feature.Feature, req feature.Request) (conf feature.Confirmation, err error) {
	defer func() {
		if r := recover(); r != nil {
			conf = nil
			err = fmt.Errorf("%w: %s panicked: %v", ErrHandlerFailed, f.Action, r)
		}
	}()
	conf, err = f.Handler(s.ctx, s.id, req)
	if err != nil {
		return nil, err
	}
	if conf == nil {
		return nil, fmt.Errorf("%w: %s returned no confirmation", ErrHandlerFailed, f.Action)
	}
	if verr := conf.Validate(); verr != nil {
		return nil, fmt.Errorf("%w: %s confirmation invalid: %v", ErrHandlerFailed, f.Action, verr)
	}
	return conf, nil
}

func (s *Session) transmit(msg protocol.Message) {
	wire, err := s.codec.Encode(msg)
	if err != nil {
		log.Error().Str("session", s.id.String()).Str("id", msg.UniqueID()).Err(err).Msg("session.Session.transmit encode reply")
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.WriteTimeout)
	defer cancel()
	if err := s.comm.Transmit(ctx, wire); err != nil {
		log.Warn().Str("session", s.id.String()).Str("id", msg.UniqueID()).Err(err).Msg("session.Session.transmit reply not delivered")
	}
}

// Close releases the communicator, fails every pending call with
// ErrSessionClosed and moves the session to Closed. Closing an already
// closed or faulted session is a no-op.
func (s *Session) Close() error {
	s.shutdown(StateClosed, nil)
	return nil
}

// Fault records an unrecoverable transport error and shuts the session
// down into Faulted.
func (s *Session) Fault(err error) {
	s.shutdown(StateFaulted, err)
}

func (s *Session) shutdown(final State, cause error) {
	s.mu.Lock()
	switch s.state {
	case StateClosing, StateClosed, StateFaulted:
		s.mu.Unlock()
		return
	}
	wasOpen := s.opened
	s.state = StateClosing
	s.cause = cause
	s.mu.Unlock()

	s.cancel()
	close(s.done)
	if err := s.comm.Close(); err != nil {
		log.Debug().Str("session", s.id.String()).Err(err).Msg("session.Session.Close communicator close")
	}
	failWith := ErrSessionClosed
	if cause != nil {
		failWith = fmt.Errorf("%w: %w", ErrSessionClosed, cause)
	}
	failed := s.queue.FailAll(failWith)

	s.mu.Lock()
	s.state = final
	s.mu.Unlock()

	if wasOpen {
		observability.SessionClosed(s.info.Transport, string(s.info.Version))
	}
	event := log.Info()
	if cause != nil {
		event = log.Warn().Err(cause)
	}
	event.
		Str("session", s.id.String()).
		Str("identifier", s.info.Identifier).
		Str("state", final.String()).
		Int("failed_calls", failed).
		Msg("session.Session.Close closed")
	if s.onClosed != nil {
		s.onClosed(s, cause)
	}
}
