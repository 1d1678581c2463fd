// Package chunker splits raw text into ordered, retrievable chunks.
//
// Invariants:
//   - Chunk ordinals are unique, gapless and increasing per document.
//   - Linking strategies advance by K-1 units so the last unit of one chunk
//     reappears as the first unit of the next (deliberate overlap).
//   - A linked group whose token estimate exceeds the budget falls back to a
//     single unit; chunk sizes near that boundary are uneven on purpose.
//   - Pure transformation: no network or storage calls.
//
// Usage:
//
//	c := chunker.New(chunker.Config{Strategy: chunker.StrategySentence, ChunkSize: 512}, logger)
//	chunks := c.Chunk("Some text. More text.", docID)
//	_ = chunks
package chunker
