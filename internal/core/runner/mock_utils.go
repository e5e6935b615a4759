package runner

import (
	"context"
	"sync"

	"github.com/fableworks/continuity/internal/core/checker"
	"github.com/fableworks/continuity/internal/core/model"
)

type memSource struct {
	paths []model.StoryPath
	err   error
}

func (s *memSource) Enumerate(ctx context.Context, revision string) ([]model.StoryPath, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.paths, nil
}

type mockChecker struct {
	mu      sync.Mutex
	calls   []string
	failIDs map[string]bool
	// afterCheck runs after each successful call, with the call count.
	afterCheck func(n int)
}

func (c *mockChecker) Check(ctx context.Context, path model.StoryPath) (model.CheckResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, path.ID)
	n := len(c.calls)
	c.mu.Unlock()

	if c.failIDs[path.ID] {
		return model.CheckResult{}, &checker.CheckFailedError{PathID: path.ID, Cause: context.DeadlineExceeded}
	}
	if c.afterCheck != nil {
		c.afterCheck(n)
	}
	return model.CheckResult{
		PathID:  path.ID,
		Name:    path.Name,
		Outcome: model.OutcomeChecked,
		Summary: "no continuity problems found",
	}, nil
}

func (c *mockChecker) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}
