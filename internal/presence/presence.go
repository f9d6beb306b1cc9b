package presence

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bowerhall/courier/internal/logger"
	"github.com/bowerhall/courier/internal/transport"
)

const (
	DefaultMinThink = 1 * time.Second
	DefaultMaxThink = 3 * time.Second

	DefaultTimeout = 5 * time.Second
)

// Setter is the slice of a transport the simulator needs.
type Setter interface {
	SetPresence(ctx context.Context, to string, p transport.Presence) error
}

// Clock lets tests observe and skip think delays.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type Config struct {
	MinThink time.Duration
	MaxThink time.Duration
	Clock    Clock
	// Timeout bounds each presence request.
	Timeout time.Duration
}

type Simulator struct {
	setter   Setter
	clock    Clock
	minThink time.Duration
	maxThink time.Duration
	timeout  time.Duration
}

func New(setter Setter, cfg Config) *Simulator {
	if cfg.MinThink <= 0 {
		cfg.MinThink = DefaultMinThink
	}
	if cfg.MaxThink < cfg.MinThink {
		cfg.MaxThink = cfg.MinThink
	}
	if cfg.Clock == nil {
		cfg.Clock = Real()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Simulator{
		setter:   setter,
		clock:    cfg.Clock,
		minThink: cfg.MinThink,
		maxThink: cfg.MaxThink,
		timeout:  cfg.Timeout,
	}
}

// Indicator is an active composing or recording indicator. End must be
// called on every exit path; deferring it right after Begin is the usual form.
type Indicator struct {
	setter  Setter
	ctx     context.Context
	sender  string
	timeout time.Duration
	once    sync.Once
}

// Begin shows kind to sender. Presence is best effort: a failed request is
// logged and the returned Indicator still ends normally.
func (s *Simulator) Begin(ctx context.Context, sender string, kind transport.Presence) *Indicator {
	beginCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.setter.SetPresence(beginCtx, sender, kind); err != nil {
		logger.Debug("presence begin failed", "sender", sender, "kind", kind, "error", err)
	}

	return &Indicator{setter: s.setter, ctx: ctx, sender: sender, timeout: s.timeout}
}

// End sends paused exactly once, even when the pipeline context is already
// cancelled.
func (i *Indicator) End() {
	i.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(i.ctx), i.timeout)
		defer cancel()

		if err := i.setter.SetPresence(ctx, i.sender, transport.PresencePaused); err != nil {
			logger.Debug("presence end failed", "sender", i.sender, "error", err)
		}
	})
}

// ThinkDelay picks a uniform delay in [MinThink, MaxThink].
func (s *Simulator) ThinkDelay() time.Duration {
	span := s.maxThink - s.minThink
	if span <= 0 {
		return s.minThink
	}
	return s.minThink + rand.N(span+1)
}

// Think waits for a human-looking pause before a reply.
func (s *Simulator) Think(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-s.clock.After(s.ThinkDelay()):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
