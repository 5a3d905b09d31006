package gate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memgate/memgate-go/pkg/gate"
	"github.com/memgate/memgate-go/pkg/relevance"
	"github.com/memgate/memgate-go/pkg/storage"
)

func TestCasualFilter_Greetings(t *testing.T) {
	f := gate.NewCasualFilter(relevance.NewNormalizer())

	casual := []string{
		"hi",
		"Hello!",
		"ok thanks",
		"hola que tal",
		"good morning",
		"",
		"!!!",
	}
	for _, text := range casual {
		assert.True(t, f.IsCasual(text), "expected casual: %q", text)
	}
}

func TestCasualFilter_AccentedSpanishGreetings(t *testing.T) {
	f := gate.NewCasualFilter(relevance.NewNormalizer())

	casual := []string{
		"¿Cómo estás?",
		"hola, ¿qué tal?",
		"Buenos días",
		"adiós, gracias",
	}
	for _, text := range casual {
		assert.True(t, f.IsCasual(text), "expected casual: %q", text)
	}
}

func TestCasualFilter_SubstantiveText(t *testing.T) {
	f := gate.NewCasualFilter(relevance.NewNormalizer())

	substantive := []string{
		"I work at Initech as an engineer",
		"my favorite coffee is dark roast",
		"hello can you explain how mortgages work",
	}
	for _, text := range substantive {
		assert.False(t, f.IsCasual(text), "expected substantive: %q", text)
	}
}

func TestCasualFilter_LongInputNeverCasual(t *testing.T) {
	f := gate.NewCasualFilter(relevance.NewNormalizer())

	// Every word is casual but the text is too long to be a throwaway.
	long := "ok ok ok ok ok ok ok ok ok ok ok ok ok ok ok ok ok ok ok ok ok"
	assert.False(t, f.IsCasual(long))
}

func TestMetaFilter_DetectsMemoryTalk(t *testing.T) {
	f := gate.NewMetaFilter(relevance.NewNormalizer())

	meta := []string{
		"Show my memories please",
		"how many memories do you have about me?",
		"cuantas memorias guardas de mi",
		"borra mis memorias ahora",
	}
	for _, text := range meta {
		assert.True(t, f.IsMeta(text), "expected meta: %q", text)
	}
}

func TestMetaFilter_OrdinaryConversation(t *testing.T) {
	f := gate.NewMetaFilter(relevance.NewNormalizer())

	ordinary := []string{
		"Tell me about the solar system",
		"I have fond memories of my childhood summers",
		"",
	}
	for _, text := range ordinary {
		assert.False(t, f.IsMeta(text), "expected ordinary: %q", text)
	}
}

func newDeduplicator(threshold float64) (*gate.Deduplicator, *relevance.Normalizer) {
	n := relevance.NewNormalizer()
	s := relevance.NewScorer(n, relevance.DefaultWeights())
	return gate.NewDeduplicator(n, s, threshold), n
}

func existingMemory(n *relevance.Normalizer, id int64, content string) *storage.Memory {
	return &storage.Memory{
		ID:          id,
		UserID:      "u1",
		Content:     content,
		ContentHash: n.ContentHash(content),
		CreatedAt:   time.Now(),
	}
}

func TestDeduplicator_ExactHashMatch(t *testing.T) {
	d, n := newDeduplicator(0.8)

	existing := []*storage.Memory{
		existingMemory(n, 1, "My favorite coffee is dark roast"),
	}

	// Same content modulo punctuation and case normalizes to the same hash.
	isDup, match := d.CheckDuplicate("my favorite coffee is DARK ROAST!", existing)
	require.True(t, isDup)
	assert.Equal(t, int64(1), match.ID)
}

func TestDeduplicator_NearDuplicate(t *testing.T) {
	d, n := newDeduplicator(0.8)

	existing := []*storage.Memory{
		existingMemory(n, 1, "User loves hiking trails"),
	}

	// Singular/plural variation survives hashing but not the similarity check.
	isDup, match := d.CheckDuplicate("User loves hiking trail", existing)
	require.True(t, isDup)
	assert.Equal(t, int64(1), match.ID)
}

func TestDeduplicator_DistinctContent(t *testing.T) {
	d, n := newDeduplicator(0.8)

	existing := []*storage.Memory{
		existingMemory(n, 1, "User loves hiking trails"),
		existingMemory(n, 2, "Favorite coffee is dark roast"),
	}

	isDup, match := d.CheckDuplicate("The weather in Lisbon is rainy today", existing)
	assert.False(t, isDup)
	assert.Nil(t, match)
}

func TestDeduplicator_EmptyInputs(t *testing.T) {
	d, n := newDeduplicator(0.8)

	isDup, _ := d.CheckDuplicate("", []*storage.Memory{existingMemory(n, 1, "something")})
	assert.False(t, isDup)

	isDup, _ = d.CheckDuplicate("new fact about coffee", nil)
	assert.False(t, isDup)
}
