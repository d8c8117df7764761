// Package embeddings provides embedding generation via multiple providers.
//
// Three providers are available:
//   - fastembed: local ONNX models (requires CGO)
//   - tei: a Text Embeddings Inference HTTP endpoint
//   - deterministic: hash-seeded pseudo-random vectors
//
// The deterministic provider exists so the engine functions without a model
// at development time. Its vectors carry no semantic meaning; similarity
// scores against them are informational only. All providers emit unit-norm
// vectors of a fixed dimension established at construction.
package embeddings
