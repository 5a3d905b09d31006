package relevance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memgate/memgate-go/pkg/relevance"
)

func TestNormalizer_Tokens(t *testing.T) {
	n := relevance.NewNormalizer()

	tokens := n.Tokens("I love hiking in the mountains")
	assert.Equal(t, []string{"love", "hik", "mountain"}, tokens)
}

func TestNormalizer_TokensDropStopwords(t *testing.T) {
	n := relevance.NewNormalizer()

	assert.Empty(t, n.Tokens("the a of and to"))
	assert.Empty(t, n.Tokens("el la de los y"))
}

func TestNormalizer_TokensEmptyInput(t *testing.T) {
	n := relevance.NewNormalizer()

	assert.Empty(t, n.Tokens(""))
	assert.Empty(t, n.Tokens("   "))
	assert.Empty(t, n.Tokens("!!! ... ???"))
}

func TestNormalizer_TokensShortWordsKeepSuffix(t *testing.T) {
	n := relevance.NewNormalizer()

	// Tokens of three runes or fewer are never suffix-stripped.
	assert.Equal(t, []string{"ai"}, n.Tokens("ai"))
	assert.Equal(t, []string{"yes"}, n.Tokens("yes"))
}

func TestNormalizer_TokensSuffixStripping(t *testing.T) {
	n := relevance.NewNormalizer()

	assert.Equal(t, []string{"cat"}, n.Tokens("cats"))
	assert.Equal(t, []string{"walk"}, n.Tokens("walked"))
	assert.Equal(t, []string{"cant"}, n.Tokens("cantando"))
	assert.Equal(t, []string{"rapida"}, n.Tokens("rapidamente"))
}

func TestNormalizer_Clean(t *testing.T) {
	n := relevance.NewNormalizer()

	assert.Equal(t, "hello world", n.Clean("Hello, World!"))
	assert.Equal(t, "one two three", n.Clean("  one\t two   three \n"))
	assert.Equal(t, "café con leche", n.Clean("Café con Leche!"), "accented letters survive cleaning")
}

func TestNormalizer_CleanKeepsStopwords(t *testing.T) {
	n := relevance.NewNormalizer()

	// Clean is the substring-matching form, so stopwords stay.
	assert.Equal(t, "the cat sat on the mat", n.Clean("The cat sat on the mat."))
}

func TestNormalizer_ContentHashStable(t *testing.T) {
	n := relevance.NewNormalizer()

	// Texts that normalize identically must hash identically.
	assert.Equal(t, n.ContentHash("Hello World"), n.ContentHash("hello, world!"))
	assert.NotEqual(t, n.ContentHash("hello world"), n.ContentHash("goodbye world"))
	assert.Len(t, n.ContentHash("anything"), 64)
}

func TestNormalizer_Signature(t *testing.T) {
	n := relevance.NewNormalizer()

	sig := n.Signature("What's my favorite coffee?")
	assert.Len(t, sig, 16)
	assert.Equal(t, sig, n.Signature("whats my favorite coffee"))
}
