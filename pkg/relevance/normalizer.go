// Package relevance provides text normalization and relevance scoring for
// memory selection.
//
// The scorer is deliberately lexical: it approximates "does this memory talk
// about what the user is talking about" with token and bigram overlap plus a
// substring signal. It runs over every scanned memory on every turn, so it has
// to be cheap and deterministic; semantic embeddings are out of scope.
package relevance

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// stopwords are tokens carrying no topical information. The set covers English
// and Spanish, the two languages the system was tuned against.
var stopwords = map[string]struct{}{
	// English
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "our": {},
	"she": {}, "so": {}, "that": {}, "the": {}, "their": {}, "them": {},
	"they": {}, "this": {}, "to": {}, "was": {}, "we": {}, "were": {},
	"what": {}, "with": {}, "you": {}, "your": {},
	// Spanish
	"al": {}, "como": {}, "con": {}, "de": {}, "del": {}, "el": {},
	"ella": {}, "ellos": {}, "en": {}, "es": {}, "esta": {}, "este": {},
	"la": {}, "las": {}, "lo": {}, "los": {}, "mi": {}, "mis": {},
	"no": {}, "o": {}, "para": {}, "pero": {}, "por": {}, "que": {},
	"se": {}, "si": {}, "son": {}, "su": {}, "sus": {}, "te": {},
	"tu": {}, "un": {}, "una": {}, "y": {}, "yo": {},
}

// suffixRules is a bounded, ordered suffix-stripping table. This is not a
// stemmer: each token is rewritten at most once, longest suffix first, and a
// suffix is only stripped when enough of the word remains to stay meaningful.
var suffixRules = []string{
	"iendo", "mente", "ando", "ing", "ed", "es", "s",
}

// Normalizer turns raw text into comparable tokens.
//
// Normalization is a pure function: the same input always yields the same
// token list. Unparseable or empty input yields an empty list, never an error.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Tokens normalizes text into a token list.
//
// The pipeline: lowercase, strip punctuation and control characters, split on
// whitespace, drop stopwords, strip one known suffix per token.
func (n *Normalizer) Tokens(text string) []string {
	clean := n.Clean(text)
	if clean == "" {
		return nil
	}

	fields := strings.Fields(clean)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		tokens = append(tokens, stripSuffix(f))
	}
	return tokens
}

// Clean lowercases text and removes punctuation and control characters,
// collapsing runs of whitespace to single spaces. Stopwords are kept; this is
// the form used for substring matching and content hashing.
func (n *Normalizer) Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsControl(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// ContentHash returns a stable hex digest of the normalized form of text.
// Two texts that normalize identically hash identically, which is what exact
// duplicate detection keys on.
func (n *Normalizer) ContentHash(text string) string {
	sum := sha256.Sum256([]byte(n.Clean(text)))
	return hex.EncodeToString(sum[:])
}

// Signature returns a short digest of the normalized text, suitable as the
// query part of a cache key.
func (n *Normalizer) Signature(text string) string {
	return n.ContentHash(text)[:16]
}

// stripSuffix applies at most one suffix rule to a token. Tokens of three
// runes or fewer are left alone so that short terms like "ai" survive intact.
func stripSuffix(token string) string {
	runes := []rune(token)
	if len(runes) <= 3 {
		return token
	}
	for _, suffix := range suffixRules {
		if strings.HasSuffix(token, suffix) && len(runes)-len([]rune(suffix)) >= 3 {
			return string(runes[:len(runes)-len([]rune(suffix))])
		}
	}
	return token
}
