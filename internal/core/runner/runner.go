// Package runner owns the lifecycle of validation runs: enumerate the
// revision's paths, triage them against the cache, drive the checker over
// the selected subset, and persist each acceptance as it lands.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fableworks/continuity/internal/core/cache"
	"github.com/fableworks/continuity/internal/core/checker"
	"github.com/fableworks/continuity/internal/core/model"
	"github.com/fableworks/continuity/internal/core/storypath"
	"github.com/fableworks/continuity/internal/core/triage"
	"github.com/fableworks/continuity/internal/status"
)

// ErrRunActive rejects a second run for a target that already has one in
// flight. Rejecting (rather than queueing) keeps two mutators off the same
// cache file and gives the caller an honest answer immediately.
var ErrRunActive = errors.New("a validation run is already active for this target")

// PathChecker is what the runner needs from the checker. Satisfied by
// *checker.Checker.
type PathChecker interface {
	Check(ctx context.Context, path model.StoryPath) (model.CheckResult, error)
}

// Runner starts and tracks runs. One checker call is in flight per run; runs
// for different targets proceed concurrently up to MaxRuns.
type Runner struct {
	Source   storypath.Source
	Store    *cache.Store
	Checker  PathChecker
	Registry *status.Registry

	mu     sync.Mutex
	active map[string]*Run
	slots  chan struct{}
}

func New(source storypath.Source, store *cache.Store, chk PathChecker, registry *status.Registry, maxRuns int) *Runner {
	if maxRuns <= 0 {
		maxRuns = 2
	}
	return &Runner{
		Source:   source,
		Store:    store,
		Checker:  chk,
		Registry: registry,
		active:   make(map[string]*Run),
		slots:    make(chan struct{}, maxRuns),
	}
}

// Result is the final aggregate of a run.
type Result struct {
	RunID   string
	Target  string
	Mode    model.Mode
	Status  model.RunStatus
	Stats   model.RunStats
	Results []model.CheckResult
	Err     error
}

// Run is one in-flight (or finished) validation run.
type Run struct {
	ID     string
	Target string
	Mode   model.Mode

	cancel   context.CancelFunc
	progress chan model.ProgressEvent
	done     chan struct{}

	mu     sync.Mutex
	result Result
}

// Progress streams one event per enumerated path, in enumeration order.
// Closed when the run reaches a terminal state.
func (r *Run) Progress() <-chan model.ProgressEvent { return r.progress }

// Cancel requests cooperative cancellation. It is observed between checker
// calls, never mid-call; cache updates already committed stay committed.
func (r *Run) Cancel() { r.cancel() }

// Wait blocks until the run is terminal and returns its final aggregate.
func (r *Run) Wait() Result {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Start begins a run for a target revision in the background. A target with
// an active run is rejected with ErrRunActive.
func (rn *Runner) Start(target string, mode model.Mode) (*Run, error) {
	rn.mu.Lock()
	if _, busy := rn.active[target]; busy {
		rn.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRunActive, target)
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &Run{
		ID:     uuid.New().String(),
		Target: target,
		Mode:   mode,
		cancel: cancel,
		// Buffer covers expected corpus sizes (tens to low hundreds of
		// paths) so a consumer that only calls Wait cannot stall the run.
		progress: make(chan model.ProgressEvent, 512),
		done:     make(chan struct{}),
	}
	rn.active[target] = run
	rn.mu.Unlock()

	rn.Registry.RunStarted(run.ID, target, mode)
	go rn.execute(ctx, run)
	return run, nil
}

// ActiveRun returns the in-flight run for a target, if any.
func (rn *Runner) ActiveRun(target string) (*Run, bool) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	run, present := rn.active[target]
	return run, present
}

func (rn *Runner) execute(ctx context.Context, run *Run) {
	defer func() {
		rn.mu.Lock()
		delete(rn.active, run.Target)
		rn.mu.Unlock()
		close(run.progress)
		close(run.done)
	}()

	result := Result{RunID: run.ID, Target: run.Target, Mode: run.Mode, Status: model.RunPending}
	defer func() {
		run.mu.Lock()
		run.result = result
		run.mu.Unlock()
		rn.Registry.RunFinished(run.Target, result.Status)
		log.Printf("run %s for %s finished: %s (new=%d modified=%d unchanged=%d checked=%d failed=%d skipped=%d)",
			run.ID, run.Target, result.Status,
			result.Stats.New, result.Stats.Modified, result.Stats.Unchanged,
			result.Stats.Checked, result.Stats.Failed, result.Stats.Skipped)
	}()

	// Concurrency ceiling across targets. The run stays pending until a
	// slot frees up.
	select {
	case rn.slots <- struct{}{}:
	case <-ctx.Done():
		result.Status = model.RunCancelled
		return
	}
	defer func() { <-rn.slots }()

	paths, err := rn.Source.Enumerate(ctx, run.Target)
	if err != nil {
		result.Status = model.RunFailed
		result.Err = fmt.Errorf("failed to enumerate paths: %w", err)
		return
	}

	state, err := rn.Store.Load()
	if err != nil {
		// Includes cache.ErrCorrupt: a run never proceeds on state it
		// cannot trust.
		result.Status = model.RunFailed
		result.Err = err
		return
	}

	// Triage every path against the state as loaded; the category buckets
	// are fixed before any checking mutates the cache.
	categories := make([]model.Category, len(paths))
	for i, p := range paths {
		categories[i] = triage.Categorize(p.ID, state)
		switch categories[i] {
		case model.CategoryNew:
			result.Stats.New++
		case model.CategoryModified:
			result.Stats.Modified++
		case model.CategoryUnchanged:
			result.Stats.Unchanged++
		}
	}

	// Record first sight of every enumerated id before checking starts, so
	// a crash mid-run still leaves a durable trace of what was seen.
	now := time.Now()
	if err := rn.Store.Update(func(st *cache.State) error {
		for _, p := range paths {
			st.RecordSeen(p.ID, now)
		}
		return nil
	}); err != nil {
		result.Status = model.RunFailed
		result.Err = fmt.Errorf("failed to record enumerated paths: %w", err)
		return
	}

	rn.Registry.RunRunning(run.Target, len(paths))
	result.Status = model.RunRunning

	for i, p := range paths {
		// Cancellation is only observed here, between paths.
		if ctx.Err() != nil {
			result.Stats.Skipped += len(paths) - i
			result.Status = model.RunCancelled
			return
		}

		var res model.CheckResult
		if !triage.ShouldCheck(categories[i], run.Mode) {
			res = model.CheckResult{PathID: p.ID, Name: p.Name, Category: categories[i], Outcome: model.OutcomeSkipped}
			result.Stats.Skipped++
		} else {
			checked, err := rn.Checker.Check(ctx, p)
			if err != nil {
				// Isolated per path: record and keep going. The entry is
				// not marked validated, so the path stays due for a
				// re-check.
				var failure *checker.CheckFailedError
				if !errors.As(err, &failure) {
					failure = &checker.CheckFailedError{PathID: p.ID, Cause: err}
				}
				log.Printf("run %s: %v", run.ID, failure)
				res = model.CheckResult{PathID: p.ID, Name: p.Name, Category: categories[i], Outcome: model.OutcomeCheckFailed, Err: failure}
				result.Stats.Failed++
			} else {
				res = checked
				res.Category = categories[i]
				// Commit acceptance immediately so partial progress
				// survives a crash or cancellation.
				if err := rn.Store.Update(func(st *cache.State) error {
					st.SetValidated(p.ID, true, time.Now())
					return nil
				}); err != nil {
					result.Status = model.RunFailed
					result.Err = fmt.Errorf("failed to commit validation for %s: %w", p.ID, err)
					return
				}
				result.Stats.Checked++
			}
		}

		result.Results = append(result.Results, res)
		rn.Registry.PathDone(run.Target, res)
		run.progress <- model.ProgressEvent{Index: i, Total: len(paths), Result: res}
	}

	result.Status = model.RunCompleted
}
