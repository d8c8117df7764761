// Package orchestrator coordinates the memory engine: message ingestion
// with periodic short-term→mid-term promotion, and context retrieval
// (preprocess, parallel tier retrieval under per-tier deadlines,
// aggregation, token-budget compression) producing the context bundle
// the chat shell feeds into its prompt.
package orchestrator
