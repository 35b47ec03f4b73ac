package rank

import (
	"context"
	"sort"
	"strings"

	"github.com/substratehq/corpus/internal/models"
	"github.com/substratehq/corpus/internal/types"
)

const (
	minResults = 1
	maxResults = 10

	previewChars = 400

	// titleWeight keeps title hits worth three text hits. Counting is raw
	// case-insensitive substring matching, intra-word hits included; callers
	// depend on that exact semantic.
	titleWeight = 3

	// candidatePool is how many nearest neighbors feed the reranker.
	candidatePool = 50

	// fallbackPool caps the recency-based candidate set used when no
	// embedding provider is configured.
	fallbackPool = 200
)

// HybridRanker embeds the query, pulls nearest neighbors and reorders them by
// (vector score, keyword score). If the provider fails mid-query it degrades
// to keyword-only ranking instead of failing the request.
type HybridRanker struct {
	embedder types.Embedder
	store    types.VectorStore
}

func NewHybridRanker(embedder types.Embedder, store types.VectorStore) *HybridRanker {
	return &HybridRanker{
		embedder: embedder,
		store:    store,
	}
}

func (r *HybridRanker) Rank(ctx context.Context, query string, k int, owner string) ([]models.SearchContext, error) {
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		// Live queries never fail on the provider; degrade to keywords.
		return keywordRank(ctx, r.store, query, k, owner)
	}

	candidates, err := r.store.NearestNeighbors(ctx, vectors[0], candidatePool, owner)
	if err != nil {
		return nil, err
	}

	return Order(query, candidates, k, true), nil
}

// KeywordOnlyRanker ranks recency-capped candidates purely by keyword score.
// Selected at startup when no embedding provider is configured.
type KeywordOnlyRanker struct {
	store types.VectorStore
}

func NewKeywordOnlyRanker(store types.VectorStore) *KeywordOnlyRanker {
	return &KeywordOnlyRanker{store: store}
}

func (r *KeywordOnlyRanker) Rank(ctx context.Context, query string, k int, owner string) ([]models.SearchContext, error) {
	return keywordRank(ctx, r.store, query, k, owner)
}

func keywordRank(ctx context.Context, store types.VectorStore, query string, k int, owner string) ([]models.SearchContext, error) {
	candidates, err := store.RecentChunks(ctx, fallbackPool, owner)
	if err != nil {
		return nil, err
	}

	return Order(query, candidates, k, false), nil
}

// Order scores and reorders candidates, truncating to k clamped to [1,10].
// Vector score is the primary sort key and keyword score the tiebreaker;
// remaining ties keep the original candidate order.
func Order(query string, candidates []models.Candidate, k int, withVectors bool) []models.SearchContext {
	k = ClampK(k)

	contexts := make([]models.SearchContext, 0, len(candidates))
	for _, c := range candidates {
		var vscore float32
		if withVectors {
			vscore = 1 - c.Distance
		}

		contexts = append(contexts, models.SearchContext{
			DocumentID: c.DocumentID,
			ChunkID:    c.ChunkID,
			Title:      c.Title,
			Preview:    preview(c.Text),
			VScore:     vscore,
			KWScore:    keywordScore(query, c.Title, c.Text),
		})
	}

	sort.SliceStable(contexts, func(i, j int) bool {
		if contexts[i].VScore != contexts[j].VScore {
			return contexts[i].VScore > contexts[j].VScore
		}
		return contexts[i].KWScore > contexts[j].KWScore
	})

	if len(contexts) > k {
		contexts = contexts[:k]
	}

	return contexts
}

// ClampK bounds the requested result count to [1,10].
func ClampK(k int) int {
	if k < minResults {
		return minResults
	}
	if k > maxResults {
		return maxResults
	}
	return k
}

func keywordScore(query, title, text string) float32 {
	q := strings.ToLower(query)
	if q == "" {
		return 0
	}

	titleHits := strings.Count(strings.ToLower(title), q)
	textHits := strings.Count(strings.ToLower(text), q)

	return float32(titleWeight*titleHits + textHits)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewChars {
		return text
	}
	return string(runes[:previewChars]) + "…"
}
