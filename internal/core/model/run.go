package model

import (
	"errors"
	"fmt"
)

// Mode selects which categories of paths a run re-checks.
type Mode string

const (
	ModeNewOnly  Mode = "new-only"
	ModeModified Mode = "modified"
	ModeAll      Mode = "all"
)

// ErrInvalidMode is returned for mode tokens outside the known set. Modes are
// never silently defaulted; only the *absence* of a token means new-only, and
// that decision belongs to the command parser.
var ErrInvalidMode = errors.New("invalid validation mode")

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNewOnly, ModeModified, ModeAll:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q (want new-only, modified or all)", ErrInvalidMode, s)
}

// RunStatus is the lifecycle state of a validation run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// RunStats aggregates a run. Checked counts successful checks, Failed counts
// attempted-but-failed checks, Skipped counts paths the mode filter excluded.
// Checked + Failed + Skipped == New + Modified + Unchanged always holds.
type RunStats struct {
	New       int `json:"new"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Checked   int `json:"checked"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (s RunStats) Total() int {
	return s.New + s.Modified + s.Unchanged
}

// ProgressEvent is emitted after each path completes (checked, failed or
// skipped). Index runs 0..Total-1 in enumeration order.
type ProgressEvent struct {
	Index  int
	Total  int
	Result CheckResult
}
