package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSpec runs eviction once a minute.
const DefaultSweepSpec = "@every 1m"

// Janitor periodically evicts finished jobs from a Tracker.
type Janitor struct {
	tracker *Tracker
	cron    *cron.Cron
	logger  *slog.Logger
}

// NewJanitor schedules tracker eviction on spec, a robfig/cron expression
// such as "@every 1m".
func NewJanitor(tracker *Tracker, spec string, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if spec == "" {
		spec = DefaultSweepSpec
	}

	j := &Janitor{tracker: tracker, cron: cron.New(), logger: logger}
	if _, err := j.cron.AddFunc(spec, j.Sweep); err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	return j, nil
}

// Sweep evicts once.
func (j *Janitor) Sweep() {
	if n := j.tracker.Evict(time.Now()); n > 0 {
		j.logger.Debug("evicted finished jobs", "count", n, "remaining", j.tracker.Len())
	}
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running sweep to finish.
func (j *Janitor) Run(ctx context.Context) error {
	j.cron.Start()
	<-ctx.Done()
	<-j.cron.Stop().Done()
	return nil
}
