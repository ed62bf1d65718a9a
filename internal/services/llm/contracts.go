package llm

import "context"

// Completer is the interface consumed by modules that need chat completions.
// It exists so tests can substitute a canned implementation.
type Completer interface {
	// GetContent returns the content of the first choice for the given messages.
	GetContent(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error)
}

// Ensure Service implements Completer
var _ Completer = (*Service)(nil)
