package classifier

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/pensiond/internal/refset"
)

// semanticCandidates is how many nearest reference examples the matcher
// inspects when resolving threshold ties.
const semanticCandidates = 5

// SemanticMatcher is the second tier: cosine similarity against the labeled
// reference set.
type SemanticMatcher struct {
	store     *refset.Store
	threshold float64
	// costPerMTokens prices the embedding call. Zero for local providers.
	costPerMTokens float64
}

// SemanticMatch is a successful second-tier resolution.
type SemanticMatch struct {
	Topic      Topic
	Similarity float64
	CostUSD    float64
}

// NewSemanticMatcher creates the second-tier matcher.
func NewSemanticMatcher(store *refset.Store, threshold, costPerMTokens float64) (*SemanticMatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("reference set store is required")
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1], got %f", threshold)
	}
	return &SemanticMatcher{
		store:          store,
		threshold:      threshold,
		costPerMTokens: costPerMTokens,
	}, nil
}

// Match embeds the query and compares it against the reference set. The
// best match's topic is accepted when its similarity meets the threshold.
// When multiple topics tie at the maximum similarity, the lexicographically
// first topic wins.
func (m *SemanticMatcher) Match(ctx context.Context, query string) (SemanticMatch, bool, error) {
	cost := m.embeddingCost(query)

	matches, err := m.store.Search(ctx, query, semanticCandidates)
	if err != nil {
		// The embedding inside the store query was already spent; keep
		// the cost so the caller's accumulator stays truthful.
		return SemanticMatch{CostUSD: cost}, false, fmt.Errorf("searching reference set: %w", err)
	}
	if len(matches) == 0 {
		return SemanticMatch{CostUSD: cost}, false, nil
	}

	// Matches come back best-first. Resolve exact ties at the maximum by
	// picking the lexicographically-first topic.
	best := matches[0]
	for _, cand := range matches[1:] {
		if cand.Similarity != best.Similarity {
			break
		}
		if cand.Topic < best.Topic {
			best = cand
		}
	}

	if float64(best.Similarity) < m.threshold {
		return SemanticMatch{CostUSD: cost}, false, nil
	}

	return SemanticMatch{
		Topic:      Topic(best.Topic),
		Similarity: float64(best.Similarity),
		CostUSD:    cost,
	}, true, nil
}

// embeddingCost estimates the embedding spend for a query. Token count is
// approximated at four characters per token.
func (m *SemanticMatcher) embeddingCost(query string) float64 {
	if m.costPerMTokens == 0 {
		return 0
	}
	tokens := float64(len(query)) / 4
	return tokens / 1_000_000 * m.costPerMTokens
}
