package embedding

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/rs/zerolog"
)

// ErrTransport marks embedding backend connectivity failures. Callers
// may match it with errors.Is; there is no retry at this layer.
var ErrTransport = errors.New("embedding transport error")

// Provider generates vector embeddings from text
type Provider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// ZeroVector returns an all-zero vector of the given dimension
func ZeroVector(dimension int) []float32 {
	return make([]float32, dimension)
}

// IsBlank reports whether text carries no embeddable content
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Sanitize enforces the configured dimension on a provider result.
// A mismatched vector is replaced by a zero vector so that downstream
// similarity scoring degrades instead of failing.
func Sanitize(vec []float32, dimension int, logger zerolog.Logger) []float32 {
	if len(vec) == dimension {
		return vec
	}
	logger.Warn().
		Int("expected", dimension).
		Int("got", len(vec)).
		Msg("Embedding dimension mismatch, substituting zero vector")
	return ZeroVector(dimension)
}

// Cosine computes cosine similarity between two vectors.
// Mismatched lengths or zero-norm vectors score 0.
func Cosine(a, b []float32) float64 {
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

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
