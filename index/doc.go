// Package index keeps the search index consistent with source entities.
//
// An Indexer projects a Searchable entity into an IndexEntry, embeds its text
// and upserts it. Embedding is best effort: when the provider fails, times
// out or returns a vector of the wrong size, the entry is stored without a
// vector and remains discoverable through keyword search.
//
// Change notifications arrive through Hooks. SyncHooks apply them within the
// calling request; a Dispatcher persists them to an outbox and applies them
// on a worker pool with retries.
package index
