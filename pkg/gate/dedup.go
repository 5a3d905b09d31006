package gate

import (
	"github.com/memgate/memgate-go/pkg/relevance"
	"github.com/memgate/memgate-go/pkg/storage"
)

// DefaultSimilarityThreshold is the default near-duplicate similarity bound.
// Candidates scoring at or above it against an existing memory are dropped.
const DefaultSimilarityThreshold = 0.8

// Deduplicator decides whether a candidate memory duplicates one the owner
// already has.
//
// Detection is two-stage: an exact match on the normalized content hash, then
// a symmetric lexical similarity check against each existing memory. The
// caller provides the existing set, already scoped to one owner; identical
// content under two different owners is two independent records by design of
// the calling layer.
type Deduplicator struct {
	normalizer *relevance.Normalizer
	scorer     *relevance.Scorer
	threshold  float64
}

// NewDeduplicator creates a deduplication manager.
//
// Parameters:
//   - normalizer: Normalizer shared with the rest of the pipeline
//   - scorer: Scorer used for near-duplicate similarity
//   - threshold: Similarity threshold (0.0-1.0). If 0, defaults to 0.8.
func NewDeduplicator(normalizer *relevance.Normalizer, scorer *relevance.Scorer, threshold float64) *Deduplicator {
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Deduplicator{
		normalizer: normalizer,
		scorer:     scorer,
		threshold:  threshold,
	}
}

// CheckDuplicate reports whether candidate duplicates any memory in existing.
//
// Returns:
//   - isDuplicate: True if an exact or near duplicate was found
//   - match: The duplicated memory (nil when isDuplicate is false)
func (d *Deduplicator) CheckDuplicate(candidate string, existing []*storage.Memory) (bool, *storage.Memory) {
	if candidate == "" || len(existing) == 0 {
		return false, nil
	}

	hash := d.normalizer.ContentHash(candidate)
	for _, mem := range existing {
		if mem.ContentHash != "" && mem.ContentHash == hash {
			return true, mem
		}
	}

	for _, mem := range existing {
		if d.scorer.Similarity(candidate, mem.Content) >= d.threshold {
			return true, mem
		}
	}

	return false, nil
}
