// Package janitor - Scheduled removal of stale prediction directories.
package janitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
)

// Janitor sweeps request directories out of an output root.
type Janitor struct {
	root     string
	maxAge   time.Duration
	schedule string
	now      func() time.Time

	cron *cron.Cron
}

// New creates a janitor removing directories under root that are older than
// maxAge. Only directories named by a uuid are considered.
//
// Arguments:
//   - root: The output root.
//   - schedule: A cron expression or descriptor such as "@every 1h".
//   - maxAge: The age past which a directory is removed.
//
// Returns:
//   - *Janitor: The janitor.
//   - error: An error if the schedule cannot be parsed or maxAge is not positive.
func New(root, schedule string, maxAge time.Duration) (*Janitor, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("max age must be positive, got %s", maxAge)
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", schedule, err)
	}
	return &Janitor{root: root, maxAge: maxAge, schedule: schedule, now: time.Now}, nil
}

// Sweep removes every expired request directory once and returns the
// removed paths.
func (j *Janitor) Sweep(ctx context.Context) ([]string, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("janitor")

	entries, err := os.ReadDir(j.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", j.root, err)
	}

	cutoff := j.now().Add(-j.maxAge)
	var removed []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		dir := filepath.Join(j.root, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("removing stale outputs", "dir", dir, "error", err)
			continue
		}
		removed = append(removed, dir)
	}

	if len(removed) > 0 {
		logger.Info("swept stale outputs", "root", j.root, "removed", len(removed))
	}
	return removed, nil
}

// Start runs Sweep on the schedule until Stop is called.
func (j *Janitor) Start(ctx context.Context) error {
	logger := log.FromContextOrDiscard(ctx).WithGroup("janitor")

	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(ctx); err != nil {
			logger.Error("sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}
	j.cron = c
	c.Start()

	logger.Info("started", "root", j.root, "schedule", j.schedule, "max_age", j.maxAge)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.cron = nil
}

// Shutdown implements do.Shutdownable.
func (j *Janitor) Shutdown() error {
	j.Stop()
	return nil
}
