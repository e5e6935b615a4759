package llm

import (
	"context"
)

// LLMClient is the single capability the checker needs from an inference
// provider.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
