// Package memory coordinates the two memory tiers and assembles bounded
// hybrid context for a conversation turn.
//
// Short-term memory is the recent turn window of a session, held with a TTL.
// Long-term memory is every turn of the session, embedded and searchable,
// alongside the shared document index. AssembleContext merges all three:
// the recent window in chronological order, then retrieved context as system
// messages, then a grounding instruction.
//
// Writes are asymmetric: a short-term write failure fails the operation, a
// long-term write failure is logged and swallowed. Clearing a session only
// empties the short-term window; long-term records stay retrievable.
package memory
