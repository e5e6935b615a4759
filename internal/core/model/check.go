package model

import (
	"fmt"
	"strings"
)

// Severity is the checker's verdict level for a path or a single issue.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityMajor
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityMinor:
		return "minor"
	case SeverityMajor:
		return "major"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity maps the checker's severity string to the ordered enum.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return SeverityNone, nil
	case "minor":
		return SeverityMinor, nil
	case "major":
		return SeverityMajor, nil
	case "critical":
		return SeverityCritical, nil
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", s)
}

// Issue is a single continuity problem the checker found in a path.
type Issue struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"-"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
}

// Outcome records how a path fared in a run.
type Outcome string

const (
	OutcomeChecked     Outcome = "checked"
	OutcomeCheckFailed Outcome = "check-failed"
	OutcomeSkipped     Outcome = "skipped"
)

// CheckResult is the per-path record a run accumulates.
type CheckResult struct {
	PathID   string
	Name     string
	Category Category
	Outcome  Outcome
	Severity Severity
	Summary  string
	Issues   []Issue
	// Err carries the failure for OutcomeCheckFailed results.
	Err error
}
