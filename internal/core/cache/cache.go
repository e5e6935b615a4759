// Package cache is the durable record of which story paths have been checked
// and accepted. The file is the source of truth; everything else (run state,
// status registry) can be lost on restart.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCorrupt means the cache file exists but cannot be parsed. Callers decide
// whether to abort or start empty; the load itself never half-applies.
var ErrCorrupt = errors.New("corrupt validation cache")

// Entry is one path's record. Unknown fields written by other tools (or
// future versions) round-trip untouched.
type Entry struct {
	validated  *bool
	firstSeen  string
	lastCommit string
	extra      map[string]json.RawMessage
	// raw holds the verbatim bytes of an entry that is not a JSON object.
	// Preserved on write-back unless the entry is explicitly written to.
	raw json.RawMessage
}

// Validated reports the entry's flag and whether it is well-formed. A
// missing or non-bool flag makes ok false; triage treats that as never
// validated.
func (e *Entry) Validated() (value, ok bool) {
	if e.validated == nil {
		return false, false
	}
	return *e.validated, true
}

func (e *Entry) FirstSeen() string { return e.firstSeen }

func (e *Entry) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// Not an object. Keep the bytes so write-back does not destroy
		// whatever another tool put here.
		e.raw = append(json.RawMessage(nil), data...)
		return nil
	}
	e.extra = fields
	if raw, present := fields["validated"]; present {
		var v bool
		if err := json.Unmarshal(raw, &v); err == nil {
			e.validated = &v
			delete(fields, "validated")
		}
		// Non-bool stays in extra and the entry counts as malformed.
	}
	if raw, present := fields["first_seen"]; present {
		if json.Unmarshal(raw, &e.firstSeen) == nil {
			delete(fields, "first_seen")
		}
	}
	if raw, present := fields["last_commit"]; present {
		if json.Unmarshal(raw, &e.lastCommit) == nil {
			delete(fields, "last_commit")
		}
	}
	return nil
}

func (e *Entry) MarshalJSON() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	out := make(map[string]json.RawMessage, len(e.extra)+3)
	for k, v := range e.extra {
		out[k] = v
	}
	if e.validated != nil {
		b, _ := json.Marshal(*e.validated)
		out["validated"] = b
	}
	if e.firstSeen != "" {
		b, _ := json.Marshal(e.firstSeen)
		out["first_seen"] = b
	}
	if e.lastCommit != "" {
		b, _ := json.Marshal(e.lastCommit)
		out["last_commit"] = b
	}
	return json.Marshal(out)
}

// State is an in-memory copy of the cache file.
type State struct {
	entries map[string]*Entry
}

func NewState() *State {
	return &State{entries: make(map[string]*Entry)}
}

// Entry returns the record for id, if present.
func (s *State) Entry(id string) (*Entry, bool) {
	e, present := s.entries[id]
	return e, present
}

func (s *State) Len() int { return len(s.entries) }

// RecordSeen adds an entry with validated=false for a newly enumerated path.
// Existing entries are never touched. A recorded-but-unvalidated id is what
// later categorizes as modified; an id never recorded at all stays new.
func (s *State) RecordSeen(id string, now time.Time) {
	if _, present := s.entries[id]; present {
		return
	}
	validated := false
	s.entries[id] = &Entry{
		validated: &validated,
		firstSeen: now.UTC().Format(time.RFC3339),
	}
}

// SetValidated writes the flag for id, creating the entry if needed. Used by
// the run loop after each check completes.
func (s *State) SetValidated(id string, validated bool, now time.Time) {
	e, present := s.entries[id]
	if !present {
		e = &Entry{firstSeen: now.UTC().Format(time.RFC3339)}
		s.entries[id] = e
	}
	e.raw = nil
	e.validated = &validated
	e.lastCommit = now.UTC().Format(time.RFC3339)
}

// MarkValidated flips every listed id that is already present to
// validated=true, regardless of its current flag. Ids absent from the cache
// are returned as skipped; approving something never seen would just create
// a stale entry nobody can trace back to content.
func (s *State) MarkValidated(ids []string, now time.Time) (applied, skippedUnknown []string) {
	for _, id := range ids {
		if _, present := s.entries[id]; !present {
			skippedUnknown = append(skippedUnknown, id)
			continue
		}
		s.SetValidated(id, true, now)
		applied = append(applied, id)
	}
	return applied, skippedUnknown
}

var (
	storesMu sync.Mutex
	stores   = make(map[string]*Store)
)

// Open returns the single Store for a cache file path. All writers to one
// file share one Store, which is what serializes run updates against
// approval merges.
func Open(path string) *Store {
	key := filepath.Clean(path)
	storesMu.Lock()
	defer storesMu.Unlock()
	if s, present := stores[key]; present {
		return s
	}
	s := &Store{path: key}
	stores[key] = s
	return s
}

// Store guards one cache file. Load/Commit/Update serialize on its mutex.
type Store struct {
	path string
	mu   sync.Mutex
}

func (s *Store) Path() string { return s.path }

// Load reads the whole file. A missing file is an empty cache; an unparseable
// one is ErrCorrupt with nothing applied.
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file '%s': %w", s.path, err)
	}
	entries := make(map[string]*Entry)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
		}
	}
	return &State{entries: entries}, nil
}

// Update runs fn over a fresh load of the state and commits the result,
// all under the store lock. Read-modify-write keeps a run's incremental
// updates from clobbering an approval merged moments earlier (and vice
// versa) — plain last-writer-wins cannot.
func (s *Store) Update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return s.commit(st)
}

// Commit atomically persists st: write a temp file in the same directory,
// then rename over the target. A crash mid-commit leaves the old file intact.
func (s *Store) Commit(st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(st)
}

func (s *Store) commit(st *State) error {
	data, err := json.MarshalIndent(st.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
