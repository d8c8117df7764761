// Package graphstore provides the property graph behind the hybrid
// long-term memory tier.
//
// A Store holds typed nodes and directed typed edges, both carrying
// free-form properties. Nodes optionally cross-link to a vector record via
// VectorID; the hybrid coordinator owns that pairing. Two backends
// implement the interface:
//
//   - MemoryGraph: in-process adjacency maps, the default for development
//   - SQLiteGraph: modernc.org/sqlite-backed persistent graph
//
// Structural queries go through Query with a parameterized template
// (find by property, traverse up to depth K, shortest path, property text
// scan). No full-text index is provided.
package graphstore
