// Package store is the vector-capable storage gateway backed by SQLite and
// sqlite-vec.
//
// Invariants:
//   - Every table has exactly one canonical typed row; rows are normalized here
//     and nowhere else.
//   - ANN search may legitimately return zero rows while vector rows are still
//     being indexed; callers treat that as index lag, not an error.
//   - Short-term turns expire by TTL; expired rows are invisible to reads even
//     before the purge loop removes them.
//   - Deleting a document removes its chunks and vector rows with it.
//
// Usage:
//
//	st, _ := store.Open("/data/mnemo.db", 384, logger)
//	defer st.Close()
//	rows, _ := st.AnnSearchDocuments(ctx, queryVec, 10)
//	_ = rows
package store
