// Package model abstracts LLM completion providers behind a small
// interface the workflow nodes consume.
//
// Subpackages provide adapters for OpenAI, Anthropic and Google Gemini;
// MockCompleter serves tests. Nodes hold a Completer and never know which
// provider is behind it.
package model

import "context"

// Chunk is one fragment of a streaming completion. A terminal chunk
// carries Err (and no text); the channel is closed after it.
type Chunk struct {
	Text string
	Err  error
}

// Completer is a single-prompt LLM client.
//
// Implementations must respect context cancellation and return provider
// errors as-is so callers can inspect them.
type Completer interface {
	// Complete returns the full completion for the prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteStream returns a channel of completion fragments in
	// generation order. The channel is closed when generation finishes
	// or fails; a failure is delivered as the final chunk's Err. The
	// setup error covers request construction and connection only.
	CompleteStream(ctx context.Context, prompt string) (<-chan Chunk, error)
}
