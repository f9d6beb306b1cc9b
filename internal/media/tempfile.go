package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bowerhall/courier/internal/logger"
)

// TempPrefix marks every scratch file this process creates so the sweeper
// can find ones a crash left behind.
const TempPrefix = "courier-"

func createTemp(dir, ext string) (*os.File, error) {
	return os.CreateTemp(dir, TempPrefix+"*"+ext)
}

// removeTemp deletes path; failure is logged and never fails the caller.
func removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("temp file cleanup failed", "path", path, "error", err)
	}
}

// Sweeper removes stale temp files on a cron schedule.
type Sweeper struct {
	dir    string
	maxAge time.Duration
}

func NewSweeper(dir string, maxAge time.Duration) *Sweeper {
	if dir == "" {
		dir = os.TempDir()
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Sweeper{dir: dir, maxAge: maxAge}
}

// Sweep removes temp files last modified before now minus maxAge.
func (s *Sweeper) Sweep(now time.Time) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, TempPrefix+"*"))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if now.Sub(info.ModTime()) < s.maxAge {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("sweep remove failed", "path", path, "error", err)
			continue
		}
		removed++
	}

	return removed, nil
}

// Run sweeps on schedule (standard cron or "@every 15m") until ctx ends.
func (s *Sweeper) Run(ctx context.Context, schedule string) error {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		n, err := s.Sweep(time.Now())
		if err != nil {
			logger.Warn("temp sweep failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("stale temp files removed", "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	c.Start()
	logger.Debug("temp sweeper started", "dir", s.dir, "schedule", schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
