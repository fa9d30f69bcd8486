// Package jobs tracks the progress and cancellation state of running
// search jobs.
package jobs

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a stage change is not allowed.
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// Job is a snapshot of one search job.
type Job struct {
	ID        string    `json:"jobId"`
	Query     string    `json:"query"`
	Stage     Stage     `json:"stage"`
	Progress  int       `json:"progress"`
	Cancelled bool      `json:"cancelled"`
	Error     string    `json:"error,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Sites     []string  `json:"sites,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Token is the cancellation signal handed to the run that owns a job.
type Token struct {
	cancelled atomic.Bool
}

// Cancelled reports whether cancellation was requested.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

type entry struct {
	mu    sync.Mutex
	job   Job
	token *Token
}

// Options bound how many finished jobs a Tracker keeps.
type Options struct {
	// TTL is how long a finished job stays visible. Defaults to 1h.
	TTL time.Duration
	// MaxEntries caps retained finished jobs. Defaults to 10000.
	MaxEntries int
}

// Tracker owns the state of every job in the process. Each job is written
// by exactly one run plus cancel requests; readers always get a consistent
// copy of one job.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*entry
	opts    Options
	now     func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker(opts Options) *Tracker {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10000
	}
	return &Tracker{
		entries: make(map[string]*entry),
		opts:    opts,
		now:     time.Now,
	}
}

// Create registers a new job for query in the starting stage.
func (t *Tracker) Create(query string) (Job, *Token) {
	now := t.now()
	e := &entry{
		job: Job{
			ID:        uuid.NewString(),
			Query:     query,
			Stage:     StageStarting,
			CreatedAt: now,
			UpdatedAt: now,
		},
		token: &Token{},
	}

	t.mu.Lock()
	t.entries[e.job.ID] = e
	t.mu.Unlock()

	return e.job, e.token
}

func (t *Tracker) lookup(id string) (*entry, error) {
	t.mu.RLock()
	e, ok := t.entries[id]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Advance moves a job to stage with the given progress. Once cancellation
// was requested the job keeps showing cancelling and only progress moves.
func (t *Tracker) Advance(id string, stage Stage, progress int) error {
	e, err := t.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Stage.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, e.job.Stage)
	}
	if e.job.Stage != StageCancelling && e.job.Stage != stage {
		if !e.job.Stage.CanTransition(stage) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.job.Stage, stage)
		}
		e.job.Stage = stage
	}
	e.job.Progress = clamp(progress)
	e.job.UpdatedAt = t.now()
	return nil
}

// Cancel requests cancellation. It reports false with ErrNotFound for an
// unknown id. Repeated calls are harmless; a finished job keeps its stage.
func (t *Tracker) Cancel(id string) (bool, error) {
	e, err := t.lookup(id)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.job.Cancelled = true
	e.token.cancelled.Store(true)
	if !e.job.Stage.IsTerminal() {
		e.job.Stage = StageCancelling
		e.job.UpdatedAt = t.now()
	}
	return true, nil
}

// Get returns a copy of the job.
func (t *Tracker) Get(id string) (Job, error) {
	e, err := t.lookup(id)
	if err != nil {
		return Job{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	job := e.job
	job.Sites = slices.Clone(e.job.Sites)
	return job, nil
}

// Complete finishes a job successfully.
func (t *Tracker) Complete(id, summary string, sites []string) error {
	return t.finish(id, StageCompleted, func(j *Job) {
		j.Progress = 100
		j.Summary = summary
		j.Sites = slices.Clone(sites)
	})
}

// Fail finishes a job with an error message.
func (t *Tracker) Fail(id, msg string) error {
	return t.finish(id, StageFailed, func(j *Job) { j.Error = msg })
}

// MarkCancelled finishes a job that stopped on a cancellation request.
func (t *Tracker) MarkCancelled(id string) error {
	return t.finish(id, StageCancelled, func(j *Job) { j.Cancelled = true })
}

func (t *Tracker) finish(id string, stage Stage, apply func(*Job)) error {
	e, err := t.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.job.Stage.CanTransition(stage) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.job.Stage, stage)
	}
	e.job.Stage = stage
	apply(&e.job)
	e.job.UpdatedAt = t.now()
	return nil
}

// Len reports how many jobs are tracked.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Evict drops finished jobs older than the TTL, then the oldest finished
// jobs beyond MaxEntries. Running jobs are never evicted.
func (t *Tracker) Evict(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	type finished struct {
		id string
		at time.Time
	}
	var kept []finished
	removed := 0
	for id, e := range t.entries {
		e.mu.Lock()
		terminal, at := e.job.Stage.IsTerminal(), e.job.UpdatedAt
		e.mu.Unlock()
		if !terminal {
			continue
		}
		if now.Sub(at) >= t.opts.TTL {
			delete(t.entries, id)
			removed++
			continue
		}
		kept = append(kept, finished{id: id, at: at})
	}

	if over := len(kept) - t.opts.MaxEntries; over > 0 {
		slices.SortFunc(kept, func(a, b finished) int { return a.at.Compare(b.at) })
		for _, f := range kept[:over] {
			delete(t.entries, f.id)
			removed++
		}
	}
	return removed
}

func clamp(p int) int {
	return min(max(p, 0), 100)
}
