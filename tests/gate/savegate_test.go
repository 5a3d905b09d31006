package gate_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memgate/memgate-go/pkg/gate"
	"github.com/memgate/memgate-go/pkg/relevance"
	"github.com/memgate/memgate-go/pkg/storage"
)

// fakeSummarizer returns a canned summary, or an error when broken.
type fakeSummarizer struct {
	summary string
	broken  bool
	calls   int
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	f.calls++
	if f.broken {
		return "", errors.New("summarizer unavailable")
	}
	return f.summary, nil
}

func (f *fakeSummarizer) Close() error { return nil }

func newSaveGate(config gate.SaveGateConfig) *gate.SaveGate {
	return newSaveGateWith(nil, config)
}

func newSaveGateWith(provider *fakeSummarizer, config gate.SaveGateConfig) *gate.SaveGate {
	n := relevance.NewNormalizer()
	s := relevance.NewScorer(n, relevance.DefaultWeights())
	casual := gate.NewCasualFilter(n)
	meta := gate.NewMetaFilter(n)
	dedup := gate.NewDeduplicator(n, s, config.SimilarityThreshold)
	if provider == nil {
		return gate.NewSaveGate(casual, meta, dedup, nil, config)
	}
	return gate.NewSaveGate(casual, meta, dedup, provider, config)
}

func TestSaveGate_SavesSubstantiveTurn(t *testing.T) {
	g := newSaveGate(gate.SaveGateConfig{})
	ctx := context.Background()

	decision := g.ShouldSave(ctx,
		"What's my favorite coffee?",
		"Your favorite coffee is dark roast from Blue Bottle.",
		false, nil)

	require.True(t, decision.Save)
	assert.Equal(t, gate.SkipNone, decision.Reason)
	assert.Equal(t, "Your favorite coffee is dark roast from Blue Bottle.", decision.Content)
}

func TestSaveGate_CommandTurnNeverSaved(t *testing.T) {
	g := newSaveGate(gate.SaveGateConfig{})
	ctx := context.Background()

	// Command suppression wins over everything, even substantive content.
	decision := g.ShouldSave(ctx,
		"/memory_add my favorite coffee is dark roast",
		"Saved: my favorite coffee is dark roast",
		true, nil)

	assert.False(t, decision.Save)
	assert.Equal(t, gate.SkipCommand, decision.Reason)
	assert.Empty(t, decision.Content)
}

func TestSaveGate_EmptyAssistantSkipped(t *testing.T) {
	g := newSaveGate(gate.SaveGateConfig{})
	ctx := context.Background()

	decision := g.ShouldSave(ctx, "tell me something", "   ", false, nil)
	assert.False(t, decision.Save)
	assert.Equal(t, gate.SkipEmpty, decision.Reason)
}

func TestSaveGate_TooShortSkipped(t *testing.T) {
	g := newSaveGate(gate.SaveGateConfig{MinLength: 10})
	ctx := context.Background()

	decision := g.ShouldSave(ctx, "hi", "ok", false, nil)
	assert.False(t, decision.Save)
	assert.Equal(t, gate.SkipTooShort, decision.Reason)
}

func TestSaveGate_CasualTurnSkipped(t *testing.T) {
	g := newSaveGate(gate.SaveGateConfig{})
	ctx := context.Background()

	decision := g.ShouldSave(ctx, "hello there", "hi how are you doing", false, nil)
	assert.False(t, decision.Save)
	assert.Equal(t, gate.SkipCasual, decision.Reason)
}

func TestSaveGate_MetaTurnSkipped(t *testing.T) {
	g := newSaveGate(gate.SaveGateConfig{})
	ctx := context.Background()

	decision := g.ShouldSave(ctx,
		"show my memories please",
		"Here is everything I have remembered about you so far.",
		false, nil)
	assert.False(t, decision.Save)
	assert.Equal(t, gate.SkipMeta, decision.Reason)
}

func TestSaveGate_DuplicateSkipped(t *testing.T) {
	g := newSaveGate(gate.SaveGateConfig{SimilarityThreshold: 0.8})
	ctx := context.Background()

	n := relevance.NewNormalizer()
	content := "Your favorite coffee is dark roast from Blue Bottle."
	existing := []*storage.Memory{{
		ID:          1,
		UserID:      "u1",
		Content:     content,
		ContentHash: n.ContentHash(content),
	}}

	decision := g.ShouldSave(ctx, "what coffee do I drink?", content, false, existing)
	assert.False(t, decision.Save)
	assert.Equal(t, gate.SkipDuplicate, decision.Reason)
}

func TestSaveGate_TruncatesLongContent(t *testing.T) {
	g := newSaveGate(gate.SaveGateConfig{MaxLength: 100})
	ctx := context.Background()

	long := "The user lives in Lisbon and " + strings.Repeat("enjoys long walks by the river ", 20)
	decision := g.ShouldSave(ctx, "where do I live?", long, false, nil)

	require.True(t, decision.Save)
	assert.Len(t, []rune(decision.Content), 100, "the stored content never exceeds MaxLength")
	assert.True(t, strings.HasSuffix(decision.Content, "..."))
}

func TestSaveGate_ContentAtMaxLengthIsNotTruncated(t *testing.T) {
	g := newSaveGate(gate.SaveGateConfig{MaxLength: 100})
	ctx := context.Background()

	exact := strings.Repeat("x", 100)
	decision := g.ShouldSave(ctx, "where do I live?", exact, false, nil)

	require.True(t, decision.Save)
	assert.Equal(t, exact, decision.Content)
}

func TestSaveGate_SummarizesPastThreshold(t *testing.T) {
	provider := &fakeSummarizer{summary: "User lives in Lisbon"}
	g := newSaveGateWith(provider, gate.SaveGateConfig{SummarizeThreshold: 50})
	ctx := context.Background()

	long := "The user mentioned they live in Lisbon, " + strings.Repeat("near the old tram line ", 5)
	decision := g.ShouldSave(ctx, "where do I live?", long, false, nil)

	require.True(t, decision.Save)
	assert.Equal(t, "User lives in Lisbon", decision.Content)
	assert.Equal(t, 1, provider.calls)
}

func TestSaveGate_SummarizerFailureFallsThrough(t *testing.T) {
	provider := &fakeSummarizer{broken: true}
	g := newSaveGateWith(provider, gate.SaveGateConfig{SummarizeThreshold: 50})
	ctx := context.Background()

	long := "The user mentioned they live in Lisbon, " + strings.Repeat("near the old tram line ", 5)
	decision := g.ShouldSave(ctx, "where do I live?", long, false, nil)

	require.True(t, decision.Save, "a broken summarizer must not block saving")
	assert.Equal(t, strings.TrimSpace(long), decision.Content)
}

func TestSaveGate_ShortTurnsSkipSummarizer(t *testing.T) {
	provider := &fakeSummarizer{summary: "unused"}
	g := newSaveGateWith(provider, gate.SaveGateConfig{SummarizeThreshold: 500})
	ctx := context.Background()

	decision := g.ShouldSave(ctx,
		"what's my coffee order?",
		"Your usual order is a dark roast pour-over.",
		false, nil)

	require.True(t, decision.Save)
	assert.Zero(t, provider.calls)
}
