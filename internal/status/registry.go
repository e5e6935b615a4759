// Package status is the in-memory view of active and recent validation runs.
// Observability only: nothing here survives a restart, and nothing here is
// authoritative — the validation cache is.
package status

import (
	"sync"
	"time"

	"github.com/fableworks/continuity/internal/core/model"
)

// Snapshot is one target's most recent run as the registry saw it.
type Snapshot struct {
	RunID     string          `json:"run_id"`
	Target    string          `json:"target"`
	Status    model.RunStatus `json:"status"`
	Mode      model.Mode      `json:"mode"`
	Done      int             `json:"done"`
	Total     int             `json:"total"`
	StartedAt time.Time       `json:"started_at"`
}

// Counters accumulate over the process lifetime.
type Counters struct {
	RunsStarted   int64 `json:"runs_started"`
	PathsChecked  int64 `json:"paths_checked"`
	CheckFailures int64 `json:"check_failures"`
}

// Registry is written by the run loop and read by the status endpoint.
type Registry struct {
	mu       sync.RWMutex
	jobs     map[string]Snapshot
	counters Counters
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Snapshot)}
}

func (r *Registry) RunStarted(runID, target string, mode model.Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.RunsStarted++
	r.jobs[target] = Snapshot{
		RunID:     runID,
		Target:    target,
		Status:    model.RunPending,
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}
}

func (r *Registry) RunRunning(target string, total int) {
	r.update(target, func(s *Snapshot) {
		s.Status = model.RunRunning
		s.Total = total
	})
}

func (r *Registry) PathDone(target string, result model.CheckResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch result.Outcome {
	case model.OutcomeChecked:
		r.counters.PathsChecked++
	case model.OutcomeCheckFailed:
		r.counters.CheckFailures++
	}
	if s, present := r.jobs[target]; present {
		s.Done++
		r.jobs[target] = s
	}
}

func (r *Registry) RunFinished(target string, status model.RunStatus) {
	r.update(target, func(s *Snapshot) {
		s.Status = status
	})
}

func (r *Registry) update(target string, fn func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, present := r.jobs[target]
	if !present {
		return
	}
	fn(&s)
	r.jobs[target] = s
}

// Jobs returns a copy of every tracked snapshot.
func (r *Registry) Jobs() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.jobs))
	for _, s := range r.jobs {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Counters() Counters {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters
}
