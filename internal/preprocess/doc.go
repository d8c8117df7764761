// Package preprocess turns raw query text into a structured Query:
// normalized text, a coarse intent from a closed vocabulary, extracted
// keywords, and an embedding. Intent and keywords are rule-based; the
// embedding comes from the injected provider and is optional (a failed
// embed degrades the query, it does not fail it).
package preprocess
