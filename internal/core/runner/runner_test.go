package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/continuity/internal/core/cache"
	"github.com/fableworks/continuity/internal/core/model"
	"github.com/fableworks/continuity/internal/status"
)

func path(id, name string) model.StoryPath {
	return model.StoryPath{ID: id, Name: name, Content: "content of " + name}
}

func newTestRunner(t *testing.T, paths []model.StoryPath, chk *mockChecker) (*Runner, *cache.Store) {
	t.Helper()
	store := cache.Open(filepath.Join(t.TempDir(), "cache.json"))
	rn := New(&memSource{paths: paths}, store, chk, status.NewRegistry(), 2)
	return rn, store
}

func validatedIDs(t *testing.T, store *cache.Store) map[string]bool {
	t.Helper()
	st, err := store.Load()
	require.NoError(t, err)
	out := map[string]bool{}
	for _, id := range []string{"11111111", "22222222", "33333333", "44444444", "55555555", "a1b2c3d4", "e5f6a7b8"} {
		if entry, present := st.Entry(id); present {
			if v, ok := entry.Validated(); ok && v {
				out[id] = true
			}
		}
	}
	return out
}

func TestRunAllNewPaths(t *testing.T) {
	// Empty cache, three paths, default mode: everything is new, everything
	// gets checked.
	chk := &mockChecker{}
	rn, store := newTestRunner(t, []model.StoryPath{
		path("11111111", "a"), path("22222222", "b"), path("33333333", "c"),
	}, chk)

	run, err := rn.Start("rev-1", model.ModeNewOnly)
	require.NoError(t, err)
	result := run.Wait()

	assert.Equal(t, model.RunCompleted, result.Status)
	assert.Equal(t, model.RunStats{New: 3, Checked: 3}, result.Stats)
	assert.Len(t, chk.Calls(), 3)
	assert.Len(t, validatedIDs(t, store), 3)
}

func TestRunSkipsRecordedPathsInNewOnlyMode(t *testing.T) {
	chk := &mockChecker{}
	rn, store := newTestRunner(t, []model.StoryPath{
		path("a1b2c3d4", "existing"), path("e5f6a7b8", "fresh"),
	}, chk)

	require.NoError(t, store.Update(func(st *cache.State) error {
		st.SetValidated("a1b2c3d4", false, time.Now())
		return nil
	}))

	run, err := rn.Start("rev-2", model.ModeNewOnly)
	require.NoError(t, err)
	result := run.Wait()

	assert.Equal(t, model.RunCompleted, result.Status)
	assert.Equal(t, model.RunStats{New: 1, Modified: 1, Checked: 1, Skipped: 1}, result.Stats)
	assert.Equal(t, []string{"e5f6a7b8"}, chk.Calls())

	// Only the checked path got validated.
	ids := validatedIDs(t, store)
	assert.True(t, ids["e5f6a7b8"])
	assert.False(t, ids["a1b2c3d4"])
}

func TestRunModeAllRechecksEverything(t *testing.T) {
	chk := &mockChecker{}
	rn, store := newTestRunner(t, []model.StoryPath{
		path("11111111", "a"), path("22222222", "b"),
	}, chk)

	require.NoError(t, store.Update(func(st *cache.State) error {
		st.SetValidated("11111111", true, time.Now())
		return nil
	}))

	run, err := rn.Start("rev-3", model.ModeAll)
	require.NoError(t, err)
	result := run.Wait()

	assert.Equal(t, model.RunStats{New: 1, Unchanged: 1, Checked: 2}, result.Stats)
}

func TestRunStatsPartitionAlwaysHolds(t *testing.T) {
	chk := &mockChecker{failIDs: map[string]bool{"22222222": true}}
	rn, _ := newTestRunner(t, []model.StoryPath{
		path("11111111", "a"), path("22222222", "b"), path("33333333", "c"),
	}, chk)

	run, err := rn.Start("rev-4", model.ModeNewOnly)
	require.NoError(t, err)
	result := run.Wait()

	s := result.Stats
	assert.Equal(t, s.Total(), s.Checked+s.Failed+s.Skipped)
}

func TestRunCheckFailureIsIsolated(t *testing.T) {
	// One of four checks fails: the run still completes, the other three
	// land in the cache, the failed path does not.
	chk := &mockChecker{failIDs: map[string]bool{"22222222": true}}
	rn, store := newTestRunner(t, []model.StoryPath{
		path("11111111", "a"), path("22222222", "b"), path("33333333", "c"), path("44444444", "d"),
	}, chk)

	run, err := rn.Start("rev-5", model.ModeNewOnly)
	require.NoError(t, err)
	result := run.Wait()

	assert.Equal(t, model.RunCompleted, result.Status)
	assert.Equal(t, model.RunStats{New: 4, Checked: 3, Failed: 1}, result.Stats)

	ids := validatedIDs(t, store)
	assert.Len(t, ids, 3)
	assert.False(t, ids["22222222"])

	var failed *model.CheckResult
	for i := range result.Results {
		if result.Results[i].Outcome == model.OutcomeCheckFailed {
			failed = &result.Results[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "22222222", failed.PathID)
	assert.Error(t, failed.Err)
}

func TestRunCancellation(t *testing.T) {
	ready := make(chan struct{})
	var run *Run
	chk := &mockChecker{}
	chk.afterCheck = func(n int) {
		if n == 2 {
			<-ready
			run.Cancel()
		}
	}
	rn, store := newTestRunner(t, []model.StoryPath{
		path("11111111", "a"), path("22222222", "b"), path("33333333", "c"),
		path("44444444", "d"), path("55555555", "e"),
	}, chk)

	run, err := rn.Start("rev-6", model.ModeNewOnly)
	require.NoError(t, err)
	close(ready)
	result := run.Wait()

	assert.Equal(t, model.RunCancelled, result.Status)
	assert.Equal(t, 2, result.Stats.Checked)
	assert.Equal(t, 3, result.Stats.Skipped)
	// Exactly the two completed checks are durably validated.
	assert.Equal(t, map[string]bool{"11111111": true, "22222222": true}, validatedIDs(t, store))
}

func TestRunProgressOrdering(t *testing.T) {
	chk := &mockChecker{}
	rn, _ := newTestRunner(t, []model.StoryPath{
		path("11111111", "a"), path("22222222", "b"), path("33333333", "c"),
	}, chk)

	run, err := rn.Start("rev-7", model.ModeNewOnly)
	require.NoError(t, err)

	var events []model.ProgressEvent
	for ev := range run.Progress() {
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, i, ev.Index)
		assert.Equal(t, 3, ev.Total)
	}
}

func TestRunRejectsConcurrentSameTarget(t *testing.T) {
	gate := make(chan struct{})
	chk := &mockChecker{}
	chk.afterCheck = func(int) { <-gate }
	rn, _ := newTestRunner(t, []model.StoryPath{path("11111111", "a")}, chk)

	first, err := rn.Start("rev-8", model.ModeNewOnly)
	require.NoError(t, err)

	_, err = rn.Start("rev-8", model.ModeNewOnly)
	assert.ErrorIs(t, err, ErrRunActive)

	close(gate)
	first.Wait()

	// Once the run is terminal the target is free again.
	second, err := rn.Start("rev-8", model.ModeNewOnly)
	require.NoError(t, err)
	second.Wait()
}

func TestRunFailsOnCorruptCache(t *testing.T) {
	store := cache.Open(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{broken"), 0o644))
	rn := New(&memSource{paths: []model.StoryPath{path("11111111", "a")}}, store, &mockChecker{}, status.NewRegistry(), 2)

	run, err := rn.Start("rev-9", model.ModeNewOnly)
	require.NoError(t, err)
	result := run.Wait()

	assert.Equal(t, model.RunFailed, result.Status)
	assert.ErrorIs(t, result.Err, cache.ErrCorrupt)
}

func TestRunFailsOnEnumerationError(t *testing.T) {
	store := cache.Open(filepath.Join(t.TempDir(), "cache.json"))
	rn := New(&memSource{err: os.ErrNotExist}, store, &mockChecker{}, status.NewRegistry(), 2)

	run, err := rn.Start("rev-10", model.ModeNewOnly)
	require.NoError(t, err)
	result := run.Wait()

	assert.Equal(t, model.RunFailed, result.Status)
	assert.Error(t, result.Err)
}

func TestRunUpdatesRegistry(t *testing.T) {
	registry := status.NewRegistry()
	store := cache.Open(filepath.Join(t.TempDir(), "cache.json"))
	rn := New(&memSource{paths: []model.StoryPath{path("11111111", "a"), path("22222222", "b")}}, store, &mockChecker{}, registry, 2)

	run, err := rn.Start("rev-11", model.ModeNewOnly)
	require.NoError(t, err)
	run.Wait()

	jobs := registry.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, model.RunCompleted, jobs[0].Status)
	assert.Equal(t, 2, jobs[0].Done)
	assert.Equal(t, 2, jobs[0].Total)

	counters := registry.Counters()
	assert.Equal(t, int64(1), counters.RunsStarted)
	assert.Equal(t, int64(2), counters.PathsChecked)
}
