// Package vectorstore provides vector storage for the long-term memory tier.
//
// A Store holds (id, vector, payload) records and answers nearest-neighbor
// queries by cosine similarity. Three backends implement the interface:
//
//   - MemoryStore: in-process linear scan, the default for development
//   - ChromemStore: embedded chromem-go with optional persistence
//   - QdrantStore: external Qdrant over gRPC
//
// All vectors in a store share one dimension, fixed at construction.
// Inserting a vector of a different dimension fails with
// ErrDimensionMismatch. Search results are sorted by descending cosine
// similarity and are monotonic in topK: the top-5 results are a prefix of
// the top-10 results for the same data and query.
package vectorstore
