package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions is the vector size of the hashing embedder.
const DefaultDimensions = 256

// HashingEmbedder is a deterministic, offline embedder that hashes lowercase
// word unigrams and bigrams into a fixed-size, L2-normalised vector.
type HashingEmbedder struct {
	dims int
}

// NewHashingEmbedder creates a hashing embedder. Non-positive dimensions use
// DefaultDimensions.
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashingEmbedder{dims: dims}
}

// Dimensions returns the vector size.
func (h *HashingEmbedder) Dimensions() int {
	return h.dims
}

// Embed implements feedback.Embedder.
func (h *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	add := func(token string) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(token))
		sum := f.Sum32()
		// The top bit picks the sign so collisions tend to cancel.
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		vec[int(sum%uint32(h.dims))] += sign // #nosec G115 -- dims is positive
	}

	for i, w := range words {
		add(w)
		if i > 0 {
			add(words[i-1] + " " + w)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
