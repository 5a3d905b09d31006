// Package summarizer defines the optional text-compression collaborator used
// before persisting long exchanges.
//
// The summarizer is strictly best-effort: the save pipeline must work
// unchanged when no summarizer is configured or when summarization fails, so
// every implementation is expected to be safe to skip.
package summarizer

import "context"

// Provider compresses raw conversational text into a compact fact.
type Provider interface {
	// Summarize returns a compact version of raw text. Implementations
	// should preserve concrete facts (names, dates, preferences) and drop
	// conversational filler.
	Summarize(ctx context.Context, text string) (string, error)

	// Close releases the provider's resources.
	Close() error
}

// Passthrough is a Provider that returns its input unchanged. It is used when
// no summarization backend is configured.
type Passthrough struct{}

// Summarize returns text unchanged.
func (Passthrough) Summarize(_ context.Context, text string) (string, error) {
	return text, nil
}

// Close is a no-op.
func (Passthrough) Close() error { return nil }
