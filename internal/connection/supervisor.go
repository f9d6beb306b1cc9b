// Package connection owns the link to the messaging network. A single
// supervisor goroutine consumes transport events, drives the session state
// machine and reconnects after link loss.
package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bowerhall/courier/internal/alerts"
	"github.com/bowerhall/courier/internal/logger"
	"github.com/bowerhall/courier/internal/transport"
)

const (
	DefaultReconnectDelay = 5 * time.Second

	inboxSize  = 64
	eventsSize = 64

	reasonReset = "reset"
)

var ErrStopped = errors.New("supervisor stopped")

type State string

const (
	Uninitialized State = "uninitialized"
	CodePending   State = "code_pending"
	Connected     State = "connected"
	Disconnected  State = "disconnected"
	Reconnecting  State = "reconnecting"
	LoggedOut     State = "logged_out"
)

type EventType string

const (
	EventCode         EventType = "code-ready"
	EventConnectivity EventType = "connectivity"
	EventLoggedOut    EventType = "logged-out"
	EventMessage      EventType = "message-received"
)

type Event struct {
	Type      EventType
	Code      string
	Connected bool
	Reason    string
	Message   transport.Message
}

// Snapshot is a point-in-time copy of the session state. LinkCode is only
// set while the state is CodePending.
type Snapshot struct {
	State      State
	LinkCode   string
	Reason     string
	Generation uint64
	Since      time.Time
}

type Config struct {
	ReconnectDelay time.Duration
	// Alerts is told when the device is logged out. Optional.
	Alerts *alerts.Alerter
}

type Supervisor struct {
	transport transport.Transport
	delay     time.Duration
	alerts    *alerts.Alerter

	inbox    chan tagged
	failures chan error
	resets   chan resetRequest
	events   chan Event
	done     chan struct{}

	mu   sync.RWMutex
	snap Snapshot

	// owned by the Run goroutine
	gen       uint64
	genCancel context.CancelFunc
	retry     *time.Timer
}

type tagged struct {
	gen uint64
	ev  transport.Event
}

type resetRequest struct {
	ctx  context.Context
	resp chan error
}

func New(t transport.Transport, cfg Config) *Supervisor {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}

	return &Supervisor{
		transport: t,
		delay:     cfg.ReconnectDelay,
		alerts:    cfg.Alerts,
		inbox:     make(chan tagged, inboxSize),
		failures:  make(chan error, 1),
		resets:    make(chan resetRequest),
		events:    make(chan Event, eventsSize),
		done:      make(chan struct{}),
		snap:      Snapshot{State: Uninitialized, Since: time.Now()},
	}
}

func (s *Supervisor) Transport() transport.Transport {
	return s.transport
}

// Events delivers supervisor events in order. It is closed when Run returns.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

func (s *Supervisor) State() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// ReportFailure lets pipelines surface transport errors. Only errors
// wrapping transport.ErrConnectionLost start recovery; repeated reports
// while one is queued are coalesced.
func (s *Supervisor) ReportFailure(err error) {
	if !errors.Is(err, transport.ErrConnectionLost) {
		return
	}

	select {
	case s.failures <- err:
	default:
	}
}

// Reset clears the stored link credentials and starts a fresh link,
// leaving LoggedOut if the session was there.
func (s *Supervisor) Reset(ctx context.Context) error {
	req := resetRequest{ctx: ctx, resp: make(chan error, 1)}

	select {
	case s.resets <- req:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run connects and supervises the link until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.events)
	defer close(s.done)
	defer s.shutdown()

	s.connect(ctx)

	for {
		var retry <-chan time.Time
		if s.retry != nil {
			retry = s.retry.C
		}

		select {
		case <-ctx.Done():
			return nil

		case in := <-s.inbox:
			if in.gen != s.gen {
				logger.Debug("stale transport event dropped", "type", in.ev.Type, "gen", in.gen, "current", s.gen)
				continue
			}
			s.handle(ctx, in.ev)

		case err := <-s.failures:
			if s.State().State != Connected {
				continue
			}
			logger.Warn("transport failure reported", "error", err)
			s.disconnected(ctx, transport.ReasonSendFailed)

		case req := <-s.resets:
			req.resp <- s.reset(ctx, req.ctx)

		case <-retry:
			s.retry = nil
			s.connect(ctx)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, ev transport.Event) {
	switch ev.Type {
	case transport.EventCode:
		s.codeReady(ctx, ev.Code)

	case transport.EventConnection:
		if ev.Connected {
			s.connected(ctx)
		} else {
			s.disconnected(ctx, ev.Reason)
		}

	case transport.EventMessage:
		s.emit(ctx, Event{Type: EventMessage, Message: ev.Message})

	case transport.EventCredentials:
		logger.Debug("link credentials updated")

	default:
		logger.Debug("unknown transport event", "type", ev.Type)
	}
}

func (s *Supervisor) codeReady(ctx context.Context, code string) {
	snap := s.State()

	switch {
	case code == "":
		return
	case snap.State == Connected, snap.State == LoggedOut:
		logger.Debug("link code ignored", "state", snap.State)
		return
	case snap.State == CodePending && snap.LinkCode == code:
		return
	}

	s.setState(CodePending, code, "")
	logger.Info("link code ready")
	s.emit(ctx, Event{Type: EventCode, Code: code})
}

func (s *Supervisor) connected(ctx context.Context) {
	if s.State().State == Connected {
		return
	}

	s.setState(Connected, "", "")
	logger.Info("link connected", "transport", s.transport.Name())
	s.emit(ctx, Event{Type: EventConnectivity, Connected: true})
}

func (s *Supervisor) disconnected(ctx context.Context, reason string) {
	prev := s.State().State
	if prev == LoggedOut {
		return
	}

	s.setState(Disconnected, "", reason)
	if prev == Connected {
		logger.Warn("link disconnected", "reason", reason)
		s.emit(ctx, Event{Type: EventConnectivity, Connected: false, Reason: reason})
	}

	if reason == transport.ReasonLoggedOut {
		s.stopGeneration()
		s.transport.Disconnect()
		s.setState(LoggedOut, "", reason)

		logger.Error("device logged out, relink required")
		if s.alerts != nil {
			s.alerts.Critical("connection", "device logged out, relink required", nil)
		}
		s.emit(ctx, Event{Type: EventLoggedOut, Reason: reason})
		return
	}

	s.setState(Reconnecting, "", reason)
	s.connect(ctx)
}

func (s *Supervisor) reset(ctx, reqCtx context.Context) error {
	if err := s.transport.Reset(reqCtx); err != nil {
		logger.Error("link reset failed", "error", err)
		return err
	}

	prev := s.State().State
	s.stopGeneration()
	s.transport.Disconnect()

	s.setState(Uninitialized, "", reasonReset)
	if prev == Connected {
		s.emit(ctx, Event{Type: EventConnectivity, Connected: false, Reason: reasonReset})
	}

	logger.Info("link reset, relinking")
	s.connect(ctx)
	return nil
}

// connect starts a new generation. Events emitted by older generations are
// dropped. A failed Connect is retried after the reconnect delay.
func (s *Supervisor) connect(ctx context.Context) {
	s.stopGeneration()

	s.gen++
	gen := s.gen
	genCtx, cancel := context.WithCancel(ctx)
	s.genCancel = cancel

	s.mu.Lock()
	s.snap.Generation = gen
	s.mu.Unlock()

	emit := func(ev transport.Event) {
		select {
		case s.inbox <- tagged{gen: gen, ev: ev}:
		case <-genCtx.Done():
		}
	}

	if err := s.transport.Connect(genCtx, emit); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("connect failed, retrying", "error", err, "delay", s.delay)
		s.retry = time.NewTimer(s.delay)
	}
}

func (s *Supervisor) stopGeneration() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	if s.genCancel != nil {
		s.genCancel()
		s.genCancel = nil
	}
}

func (s *Supervisor) shutdown() {
	s.stopGeneration()
	s.transport.Disconnect()
	s.setState(Disconnected, "", transport.ReasonShutdown)
}

func (s *Supervisor) setState(state State, code, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State != state {
		s.snap.Since = time.Now()
	}
	s.snap.State = state
	s.snap.LinkCode = code
	s.snap.Reason = reason
}

func (s *Supervisor) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
