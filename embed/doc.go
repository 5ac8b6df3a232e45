// Package embed provides content-addressed embedding caching and batched,
// bounded-concurrency embedding against a provider. The Orchestrator is
// the only concurrency boundary in the core: it issues a small fixed
// number of provider batches in parallel and reassembles results into
// input order.
package embed
