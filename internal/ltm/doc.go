// Package ltm coordinates the long-term memory pair: a vector store for
// semantic search and a property graph for structural relations, linked
// by bidirectional ids.
//
// Insertion is transactional over the node/record pair: a failed vector
// insert removes the fresh node, a failed back-link removes both. Edge
// creation from declared links is best-effort and never rolls back the
// main insertion.
//
// Retrieval supports five strategies (vector only, graph only, vector
// first, graph first, parallel). When one backend is down, strategies
// that can still serve degrade and flag the result; strategies that
// depend on the down backend fail with ErrBackendUnavailable.
package ltm
