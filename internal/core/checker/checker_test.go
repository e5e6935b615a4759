package checker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/continuity/internal/core/model"
)

var testPath = model.StoryPath{ID: "a1b2c3d4", Name: "north-gate-ending", Content: "Mira walks to the gate."}

func newTestChecker(mock *MockLLMClient) *Checker {
	c := New(mock, "", time.Second, 1)
	c.Backoff = time.Millisecond
	return c
}

func TestCheckParsesVerdict(t *testing.T) {
	mock := &MockLLMClient{Response: `Here you go:
{
  "severity": "major",
  "summary": "The lantern is lit after it was lost.",
  "issues": [
    {"type": "item-continuity", "severity": "major", "description": "Lantern reappears", "location": "passage 12"}
  ]
}`}

	result, err := newTestChecker(mock).Check(context.Background(), testPath)
	require.NoError(t, err)

	assert.Equal(t, "a1b2c3d4", result.PathID)
	assert.Equal(t, model.OutcomeChecked, result.Outcome)
	assert.Equal(t, model.SeverityMajor, result.Severity)
	assert.Equal(t, "The lantern is lit after it was lost.", result.Summary)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "item-continuity", result.Issues[0].Type)
	assert.Equal(t, model.SeverityMajor, result.Issues[0].Severity)
}

func TestCheckCleanVerdict(t *testing.T) {
	mock := &MockLLMClient{Response: `{"severity": "none", "summary": "No continuity problems found.", "issues": []}`}

	result, err := newTestChecker(mock).Check(context.Background(), testPath)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityNone, result.Severity)
	assert.Empty(t, result.Issues)
}

func TestCheckTransportFailure(t *testing.T) {
	mock := &MockLLMClient{Err: errors.New("connection refused")}

	_, err := newTestChecker(mock).Check(context.Background(), testPath)

	var failure *CheckFailedError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "a1b2c3d4", failure.PathID)
	// One original attempt plus one retry.
	assert.Equal(t, 2, mock.Calls)
}

func TestCheckRetriesOnceThenSucceeds(t *testing.T) {
	mock := &MockLLMClient{
		TransientErrs: 1,
		TransientErr:  errors.New("timeout"),
		Response:      `{"severity": "none", "summary": "ok", "issues": []}`,
	}

	result, err := newTestChecker(mock).Check(context.Background(), testPath)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeChecked, result.Outcome)
	assert.Equal(t, 2, mock.Calls)
}

func TestCheckMalformedResponseNotRetried(t *testing.T) {
	mock := &MockLLMClient{Response: "I cannot answer in JSON today."}

	_, err := newTestChecker(mock).Check(context.Background(), testPath)

	var failure *CheckFailedError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 1, mock.Calls)
}

func TestCheckUnknownSeverityFails(t *testing.T) {
	mock := &MockLLMClient{Response: `{"severity": "catastrophic", "summary": "x", "issues": []}`}

	_, err := newTestChecker(mock).Check(context.Background(), testPath)
	var failure *CheckFailedError
	assert.ErrorAs(t, err, &failure)
}
