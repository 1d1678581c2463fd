// Package retrieval performs dual-source similarity search over the document
// index and the per-session conversational index, then reranks the merged
// candidates with a blended semantic and lexical score.
//
// Invariants:
//   - Cosine similarity is recomputed locally for every row; raw index
//     distances are never trusted for scoring.
//   - An empty ANN result triggers an exhaustive scan fallback (index lag is
//     not an error).
//   - Conversation candidates always carry the requesting session id; rows from
//     other sessions are discarded even when the fallback scan returns them.
//   - A storage failure on one source degrades that source to an empty result;
//     it never aborts the other source.
//   - Document and conversation selections are capped independently.
//
// Usage:
//
//	eng := retrieval.NewEngine(st, retrieval.Config{DocTopK: 6, LongTopK: 4}, logger)
//	result := eng.Search(ctx, "what is my name?", queryVec, sessionID)
//	_ = result.Candidates
package retrieval
