package checker

import (
	"context"
)

type MockLLMClient struct {
	Response string
	Err      error
	// TransientErrs fails this many calls before Response is returned.
	TransientErrs int
	TransientErr  error
	Calls         int
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.Calls++
	if m.TransientErrs > 0 {
		m.TransientErrs--
		return "", m.TransientErr
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}
