package relevance

import "strings"

// Weights controls how the three lexical signals combine into a final score.
//
// The defaults (0.40 unigram, 0.30 bigram, 0.30 substring) were tuned
// empirically against one deployment's memory distribution. They are
// configuration defaults, not invariants; callers with very short or very
// long memories should re-tune them.
type Weights struct {
	// Unigram is the weight of distinct-token Jaccard overlap.
	Unigram float64 `json:"unigram"`

	// Bigram is the weight of adjacent-pair Jaccard overlap.
	Bigram float64 `json:"bigram"`

	// Substring is the weight of the verbatim-query bonus.
	Substring float64 `json:"substring"`
}

// DefaultWeights returns the default signal weighting.
func DefaultWeights() Weights {
	return Weights{Unigram: 0.40, Bigram: 0.30, Substring: 0.30}
}

// Scorer computes a bounded [0,1] relevance score between a query and a
// candidate memory using token overlap. It holds no mutable state and is safe
// for concurrent use.
type Scorer struct {
	normalizer *Normalizer
	weights    Weights
}

// NewScorer creates a Scorer with the given weights. Zero-valued weights fall
// back to the defaults.
func NewScorer(normalizer *Normalizer, weights Weights) *Scorer {
	if weights.Unigram == 0 && weights.Bigram == 0 && weights.Substring == 0 {
		weights = DefaultWeights()
	}
	return &Scorer{
		normalizer: normalizer,
		weights:    weights,
	}
}

// Score computes the relevance of candidate text to the query.
//
// The score combines:
//   - unigram Jaccard: intersection over union of distinct tokens
//   - bigram Jaccard: the same formula over adjacent token pairs
//   - substring bonus: 1.0 when the full normalized query appears verbatim
//     inside the normalized candidate, 0 otherwise
//
// If either side normalizes to an empty token list the score is 0. Identical
// normalized texts score the maximum attainable value (1.0).
func (s *Scorer) Score(query, candidate string) float64 {
	queryTokens := s.normalizer.Tokens(query)
	candidateTokens := s.normalizer.Tokens(candidate)
	return s.ScoreTokens(queryTokens, candidateTokens, s.normalizer.Clean(query), s.normalizer.Clean(candidate))
}

// ScoreTokens scores pre-normalized token lists. queryClean and candidateClean
// are the normalized (but untokenized) forms used for the substring signal;
// callers that tokenized via the same Normalizer can pass them through to
// avoid re-normalizing inside a scan loop.
func (s *Scorer) ScoreTokens(queryTokens, candidateTokens []string, queryClean, candidateClean string) float64 {
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return 0
	}

	unigram := jaccard(toSet(queryTokens), toSet(candidateTokens))
	bigram := jaccard(bigramSet(queryTokens), bigramSet(candidateTokens))

	substring := 0.0
	if queryClean != "" && candidateClean != "" && strings.Contains(candidateClean, queryClean) {
		substring = 1.0
	}

	score := s.weights.Unigram*unigram + s.weights.Bigram*bigram + s.weights.Substring*substring
	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Similarity is a symmetric variant used for duplicate detection: it scores
// both directions and returns the higher value, so that a short text fully
// contained in a longer one still registers as similar.
func (s *Scorer) Similarity(a, b string) float64 {
	forward := s.Score(a, b)
	backward := s.Score(b, a)
	if backward > forward {
		return backward
	}
	return forward
}

// jaccard computes |a ∩ b| / |a ∪ b| over string sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// bigramSet builds the set of adjacent token pairs. Fewer than two tokens
// yields an empty set.
func bigramSet(tokens []string) map[string]struct{} {
	if len(tokens) < 2 {
		return nil
	}
	set := make(map[string]struct{}, len(tokens)-1)
	for i := 0; i < len(tokens)-1; i++ {
		set[tokens[i]+" "+tokens[i+1]] = struct{}{}
	}
	return set
}
