package search

import (
	"context"
	"math"
	"sort"
)

// Embedder converts text into an embedding vector. Implementations are
// expected to be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Candidate is one chunk offered for ranking.
type Candidate struct {
	ID     string
	Text   string
	Vector []float64
}

// Result is a ranked chunk with its similarity score.
type Result struct {
	ID    string
	Text  string
	Score float64
}

// Cosine returns the cosine similarity of two vectors in [-1,1]. Mismatched
// lengths or zero-magnitude vectors score 0 so that broken embeddings rank
// last instead of erroring the whole pass.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RankBySimilarity scores every candidate against the query vector, drops
// scores below minScore, sorts descending (ties broken by ID for
// deterministic output), and keeps at most k results.
func RankBySimilarity(query []float64, cands []Candidate, minScore float64, k int) []Result {
	out := make([]Result, 0, len(cands))
	for _, c := range cands {
		score := Cosine(query, c.Vector)
		if score < minScore {
			continue
		}
		out = append(out, Result{ID: c.ID, Text: c.Text, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
