package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/fableworks/continuity/internal/core/common"
	"github.com/fableworks/continuity/internal/core/model"
	"github.com/fableworks/continuity/internal/llm"
)

// DefaultPrompt is used when the config carries no checker prompt. The real
// deployment overrides this with a much longer template.
const DefaultPrompt = `You are reviewing one complete path through a branching story for internal consistency (continuity of characters, items, knowledge and timeline).

Report findings as JSON: {"severity": "none|minor|major|critical", "summary": "...", "issues": [{"type": "...", "severity": "none|minor|major|critical", "description": "...", "location": "..."}]}

Story path:

%s`

// CheckFailedError marks a per-path check that could not produce a verdict:
// transport error, timeout, or an unparseable response. The run records it
// and moves on; it never aborts the remaining paths.
type CheckFailedError struct {
	PathID string
	Cause  error
}

func (e *CheckFailedError) Error() string {
	return fmt.Sprintf("check failed for path %s: %v", e.PathID, e.Cause)
}

func (e *CheckFailedError) Unwrap() error { return e.Cause }

// Checker runs the continuity prompt against the inference service for one
// path at a time.
type Checker struct {
	LLM     llm.LLMClient
	Prompt  string
	Timeout time.Duration
	// Retries is the number of extra attempts after a failed call.
	Retries int
	// Backoff between attempts. Exposed for tests.
	Backoff time.Duration
}

func New(client llm.LLMClient, prompt string, timeout time.Duration, retries int) *Checker {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Checker{
		LLM:     client,
		Prompt:  prompt,
		Timeout: timeout,
		Retries: retries,
		Backoff: 2 * time.Second,
	}
}

// checkResponse is the wire shape the prompt asks the model for.
type checkResponse struct {
	Severity string `json:"severity"`
	Summary  string `json:"summary"`
	Issues   []struct {
		Type        string `json:"type"`
		Severity    string `json:"severity"`
		Description string `json:"description"`
		Location    string `json:"location"`
	} `json:"issues"`
}

// Check validates one path. The per-call timeout is enforced here, not
// assumed from the provider client. On failure the returned error is a
// *CheckFailedError.
func (c *Checker) Check(ctx context.Context, path model.StoryPath) (model.CheckResult, error) {
	prompt := fmt.Sprintf(c.Prompt, path.Content)

	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return model.CheckResult{}, &CheckFailedError{PathID: path.ID, Cause: ctx.Err()}
			case <-time.After(c.Backoff * time.Duration(attempt)):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		response, err := c.LLM.Generate(callCtx, prompt)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		result, err := parseResult(path, response)
		if err != nil {
			// A malformed verdict is not retried: the model answered, it
			// just answered garbage, and a retry tends to buy the same
			// garbage again.
			return model.CheckResult{}, &CheckFailedError{PathID: path.ID, Cause: err}
		}
		return result, nil
	}
	return model.CheckResult{}, &CheckFailedError{PathID: path.ID, Cause: lastErr}
}

func parseResult(path model.StoryPath, response string) (model.CheckResult, error) {
	parsed, err := common.ParseJSON[checkResponse](response)
	if err != nil {
		return model.CheckResult{}, fmt.Errorf("failed to parse checker response: %w", err)
	}

	severity, err := model.ParseSeverity(parsed.Severity)
	if err != nil {
		return model.CheckResult{}, fmt.Errorf("bad checker response: %w", err)
	}

	result := model.CheckResult{
		PathID:   path.ID,
		Name:     path.Name,
		Outcome:  model.OutcomeChecked,
		Severity: severity,
		Summary:  parsed.Summary,
	}
	for _, issue := range parsed.Issues {
		issueSeverity, err := model.ParseSeverity(issue.Severity)
		if err != nil {
			// Per-issue severity degrades to the overall verdict rather
			// than failing a check the model otherwise completed.
			issueSeverity = severity
		}
		result.Issues = append(result.Issues, model.Issue{
			Type:        issue.Type,
			Severity:    issueSeverity,
			Description: issue.Description,
			Location:    issue.Location,
		})
	}
	return result, nil
}
