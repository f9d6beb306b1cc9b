package budget

import (
	"sync"
	"time"
)

// Tracker counts AI requests against a daily limit. A zero limit disables it.
type Tracker struct {
	mu         sync.Mutex
	dailyLimit int
	warnAt     float64
	used       int
	lastReset  time.Time
	onWarn     func(used, limit int)
	onExceeded func(used, limit int)
	warnSent   bool
	timezone   *time.Location
	now        func() time.Time
}

type Config struct {
	DailyLimit int
	WarnAt     float64
	Timezone   *time.Location
}

func NewTracker(cfg Config, onWarn, onExceeded func(used, limit int)) *Tracker {
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}

	warnAt := cfg.WarnAt
	if warnAt <= 0 || warnAt > 1 {
		warnAt = 0.8
	}

	return &Tracker{
		dailyLimit: cfg.DailyLimit,
		warnAt:     warnAt,
		lastReset:  time.Now().In(tz),
		onWarn:     onWarn,
		onExceeded: onExceeded,
		timezone:   tz,
		now:        time.Now,
	}
}

// Take admits one request, returning false once today's limit is spent.
func (t *Tracker) Take() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dailyLimit <= 0 {
		return true
	}

	t.checkReset()

	if t.used >= t.dailyLimit {
		if t.onExceeded != nil {
			t.onExceeded(t.used, t.dailyLimit)
		}
		return false
	}

	t.used++

	if !t.warnSent && float64(t.used) >= float64(t.dailyLimit)*t.warnAt {
		t.warnSent = true

		if t.onWarn != nil {
			t.onWarn(t.used, t.dailyLimit)
		}
	}

	return true
}

func (t *Tracker) Usage() (used, limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkReset()
	return t.used, t.dailyLimit
}

// must hold lock
func (t *Tracker) checkReset() {
	now := t.now().In(t.timezone)
	if now.YearDay() != t.lastReset.YearDay() || now.Year() != t.lastReset.Year() {
		t.used = 0
		t.warnSent = false
		t.lastReset = now
	}
}
