// Package memory implements the short- and mid-term conversation tiers.
//
// ShortTerm holds recent role-tagged turns in a bounded FIFO with an
// optional TTL; MidTerm holds summarized chunks produced by Summarizer
// from groups of turns. Both tiers are guarded by a single-writer /
// multi-reader lock and never block on I/O. Snapshot serializes both
// tiers plus the promotion counter to a versioned JSON document.
package memory
