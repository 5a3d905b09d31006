// Package gate decides what conversational content is allowed to become a
// persisted memory, and filters what should never be scored at all.
package gate

import (
	"strings"

	"github.com/memgate/memgate-go/pkg/relevance"
)

// casualWords are greetings, acknowledgments, and filler in English and
// Spanish. A turn made up entirely of these carries no persistable or
// scoreable information.
var casualWords = map[string]struct{}{
	// English
	"hello": {}, "hi": {}, "hey": {}, "yo": {}, "sup": {}, "good": {},
	"morning": {}, "afternoon": {}, "evening": {}, "night": {}, "bye": {},
	"goodbye": {}, "thanks": {}, "thank": {}, "ok": {}, "okay": {},
	"yes": {}, "yeah": {}, "yep": {}, "nope": {}, "sure": {}, "cool": {},
	"nice": {}, "great": {}, "haha": {}, "lol": {}, "hmm": {}, "ah": {},
	"oh": {}, "how": {}, "are": {}, "you": {}, "doing": {}, "there": {},
	// Spanish
	"hola": {}, "buenas": {}, "buenos": {}, "dias": {}, "días": {},
	"tardes": {}, "noches": {}, "adios": {}, "adiós": {}, "chao": {},
	"gracias": {}, "vale": {}, "claro": {}, "genial": {}, "perfecto": {},
	"bien": {}, "jaja": {}, "jeje": {}, "si": {}, "sí": {}, "no": {},
	"que": {}, "qué": {}, "tal": {}, "como": {}, "cómo": {}, "estas": {},
	"estás": {}, "va": {},
	"todo": {}, "muy": {}, "y": {}, "tu": {}, "usted": {},
}

// casualMaxLen is the maximum normalized length, in runes, for a turn to be
// considered casual. Longer inputs always go through scoring and saving.
const casualMaxLen = 40

// CasualFilter detects short, low-information turns (greetings and
// acknowledgments). Such turns are exempt from both scoring and saving; a
// single common word spuriously matches too many memories.
type CasualFilter struct {
	normalizer *relevance.Normalizer
}

// NewCasualFilter creates a CasualFilter.
func NewCasualFilter(normalizer *relevance.Normalizer) *CasualFilter {
	return &CasualFilter{normalizer: normalizer}
}

// IsCasual reports whether text is a casual turn: short once normalized, with
// every word drawn from the casual lexicon. Text that normalizes to nothing
// is casual by definition.
func (f *CasualFilter) IsCasual(text string) bool {
	clean := f.normalizer.Clean(text)
	if clean == "" {
		return true
	}
	if len([]rune(clean)) > casualMaxLen {
		return false
	}

	for _, word := range strings.Fields(clean) {
		if _, ok := casualWords[word]; !ok {
			return false
		}
	}
	return true
}
