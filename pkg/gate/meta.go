package gate

import (
	"strings"

	"github.com/memgate/memgate-go/pkg/relevance"
)

// metaPhrases match conversation *about* the memory system itself, in English
// and Spanish. Persisting this control-plane chatter would pollute the store
// with memories about memories. Phrases are compared in normalized form.
var metaPhrases = []string{
	// English
	"my memories",
	"show my memories",
	"list my memories",
	"how many memories",
	"delete my memories",
	"clear my memories",
	"saved memories",
	"memory count",
	"memory system",
	"memory command",
	"stored memories",
	"remember this conversation",
	// Spanish
	"mis memorias",
	"cuantas memorias",
	"muestra mis memorias",
	"borra mis memorias",
	"elimina mis memorias",
	"memorias guardadas",
	"sistema de memoria",
	"lista de memorias",
	"memoria guardada",
}

// MetaFilter detects turns that talk about the memory feature itself.
type MetaFilter struct {
	normalizer *relevance.Normalizer
}

// NewMetaFilter creates a MetaFilter.
func NewMetaFilter(normalizer *relevance.Normalizer) *MetaFilter {
	return &MetaFilter{normalizer: normalizer}
}

// IsMeta reports whether text contains a phrase about the memory system.
func (f *MetaFilter) IsMeta(text string) bool {
	clean := f.normalizer.Clean(text)
	if clean == "" {
		return false
	}
	for _, phrase := range metaPhrases {
		if strings.Contains(clean, phrase) {
			return true
		}
	}
	return false
}
