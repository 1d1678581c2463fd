// Package embedding turns text into fixed-dimension vectors via a pluggable provider.
//
// Invariants:
//   - Empty or whitespace-only input yields a zero vector, never an error.
//   - A vector whose length differs from the configured dimension is replaced by
//     a zero vector and logged; callers keep working with non-discriminative
//     similarity instead of aborting.
//   - Transport failures are returned as-is; no retry happens at this layer.
//
// Usage:
//
//	p := embedding.NewOllamaProvider("http://localhost:11434", "all-minilm:l6-v2", 384)
//	vec, _ := p.Embed(ctx, "hello world")
//	sim := embedding.Cosine(vec, vec)
//	_ = sim
package embedding
