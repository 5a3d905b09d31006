package gate

import (
	"context"
	"strings"

	"github.com/memgate/memgate-go/pkg/storage"
	"github.com/memgate/memgate-go/pkg/summarizer"
)

// SkipReason explains why a turn was not persisted.
type SkipReason string

const (
	// SkipNone means the turn was not skipped.
	SkipNone SkipReason = ""

	// SkipCommand means the turn was handled as a command. Command traffic
	// must never be persisted, including when command execution failed.
	SkipCommand SkipReason = "command"

	// SkipEmpty means there was no content to save.
	SkipEmpty SkipReason = "empty"

	// SkipTooShort means the content was below the minimum length.
	SkipTooShort SkipReason = "too_short"

	// SkipCasual means the turn was a greeting or acknowledgment.
	SkipCasual SkipReason = "casual"

	// SkipMeta means the turn was about the memory system itself.
	SkipMeta SkipReason = "meta"

	// SkipDuplicate means an equal or near-equal memory already exists.
	SkipDuplicate SkipReason = "duplicate"

	// SkipPrivate means the owner has private mode enabled.
	SkipPrivate SkipReason = "private_mode"

	// SkipError means a pipeline failure resolved to the safe default.
	SkipError SkipReason = "error"
)

// Decision is the outcome of the save pipeline.
type Decision struct {
	// Save is true when Content should be persisted.
	Save bool

	// Content is the candidate memory text, bounded and possibly
	// summarized. Empty unless Save is true.
	Content string

	// Reason explains a skip. SkipNone when Save is true.
	Reason SkipReason
}

// ellipsis marks truncated content; the truncated result, ellipsis included,
// never exceeds MaxLength.
const ellipsis = "..."

func skip(reason SkipReason) Decision {
	return Decision{Reason: reason}
}

// SaveGateConfig bounds what the gate will persist.
type SaveGateConfig struct {
	// MinLength is the minimum combined content length to save, in runes.
	MinLength int

	// MaxLength is the maximum stored content length, in runes, ellipsis
	// included. Longer candidates are truncated before summarization.
	MaxLength int

	// SummarizeThreshold is the content length, in runes, above which the
	// summarizer is invoked. Zero disables summarization.
	SummarizeThreshold int

	// SimilarityThreshold is the near-duplicate bound passed to the
	// deduplicator.
	SimilarityThreshold float64
}

// SaveGate decides whether and what to persist after a turn completes.
//
// The pipeline, in order: command suppression, length and casual filtering,
// anti-meta filtering, candidate assembly with optional summarization, then
// deduplication. Any internal failure resolves to skip: the gate never saves
// possibly-malformed content and never propagates an error that could break
// the turn.
type SaveGate struct {
	casual     *CasualFilter
	meta       *MetaFilter
	dedup      *Deduplicator
	summarizer summarizer.Provider
	config     SaveGateConfig
}

// NewSaveGate creates a SaveGate. A nil summarizer falls back to pass-through.
func NewSaveGate(
	casual *CasualFilter,
	meta *MetaFilter,
	dedup *Deduplicator,
	provider summarizer.Provider,
	config SaveGateConfig,
) *SaveGate {
	if provider == nil {
		provider = summarizer.Passthrough{}
	}
	if config.MinLength <= 0 {
		config.MinLength = 10
	}
	// MaxLength must leave room for the truncation ellipsis.
	if config.MaxLength <= len(ellipsis) {
		config.MaxLength = 2000
	}
	return &SaveGate{
		casual:     casual,
		meta:       meta,
		dedup:      dedup,
		summarizer: provider,
		config:     config,
	}
}

// ShouldSave runs the save pipeline for a completed turn.
//
// commandHandled comes from the turn state established at pre-turn time: when
// true the decision is always skip, before anything else is inspected. This
// is the single most important rule in the gate: command traffic must not
// leak into memory through any path, including error paths.
//
// existing is the owner's recent memory set used for deduplication; the
// caller fetches it and owner scoping is the caller's responsibility.
func (g *SaveGate) ShouldSave(ctx context.Context, userText, assistantText string, commandHandled bool, existing []*storage.Memory) Decision {
	if commandHandled {
		return skip(SkipCommand)
	}

	candidate := strings.TrimSpace(assistantText)
	if candidate == "" {
		return skip(SkipEmpty)
	}

	combined := strings.TrimSpace(userText) + " " + candidate
	if len([]rune(combined)) < g.config.MinLength {
		return skip(SkipTooShort)
	}

	if g.casual.IsCasual(userText) && g.casual.IsCasual(assistantText) {
		return skip(SkipCasual)
	}

	if g.meta.IsMeta(combined) {
		return skip(SkipMeta)
	}

	if runes := []rune(candidate); len(runes) > g.config.MaxLength {
		candidate = string(runes[:g.config.MaxLength-len(ellipsis)]) + ellipsis
	}

	if g.config.SummarizeThreshold > 0 && len([]rune(candidate)) > g.config.SummarizeThreshold {
		if compact, err := g.summarizer.Summarize(ctx, candidate); err == nil && strings.TrimSpace(compact) != "" {
			candidate = strings.TrimSpace(compact)
		}
		// Summarization failure falls through with the truncated original.
	}

	if isDup, _ := g.dedup.CheckDuplicate(candidate, existing); isDup {
		return skip(SkipDuplicate)
	}

	return Decision{Save: true, Content: candidate}
}
