// Package embedding turns feedback text into vectors and ranks stored
// feedback by similarity.
package embedding

import (
	"context"
	"math"
	"sort"

	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
)

// Candidate is a stored exemplar with its observation embedding.
type Candidate struct {
	Feedback feedback.Feedback
	Vector   []float32
}

// Text returns the string embedded for an exemplar.
func Text(fb feedback.Feedback) string {
	if fb.ObservationContent == "" {
		return fb.ObservationName
	}
	return fb.ObservationName + ": " + fb.ObservationContent
}

// Cosine returns the cosine similarity of two vectors, or 0 when their
// lengths differ or either is zero.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Rank orders candidates by similarity to query, newest first on ties, and
// returns at most topK exemplars.
func Rank(query []float32, candidates []Candidate, topK int) []feedback.Feedback {
	if topK <= 0 || len(candidates) == 0 {
		return []feedback.Feedback{}
	}

	type scored struct {
		fb    feedback.Feedback
		score float32
	}
	all := make([]scored, len(candidates))
	for i, c := range candidates {
		all[i] = scored{fb: c.Feedback, score: Cosine(query, c.Vector)}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].fb.CreatedAt.After(all[j].fb.CreatedAt)
	})

	if len(all) > topK {
		all = all[:topK]
	}
	out := make([]feedback.Feedback, len(all))
	for i, s := range all {
		out[i] = s.fb
	}
	return out
}

// EmbedQuery embeds the query text, returning nil for empty text or a nil
// embedder so ranking falls back to recency.
func EmbedQuery(ctx context.Context, e feedback.Embedder, text string) ([]float32, error) {
	if e == nil || text == "" {
		return nil, nil
	}
	return e.Embed(ctx, text)
}

// EmbedFeedback embeds an exemplar's observation, returning nil for a nil
// embedder.
func EmbedFeedback(ctx context.Context, e feedback.Embedder, fb feedback.Feedback) ([]float32, error) {
	if e == nil {
		return nil, nil
	}
	return e.Embed(ctx, Text(fb))
}
