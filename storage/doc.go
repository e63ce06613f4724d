// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage provides the storage abstraction layer for marketsearch.
//
// This package defines repository interfaces that decouple the index store
// from the indexer and the query engine, so different storage backends can be
// used interchangeably.
//
// # Backends
//
//   - storage/badger: embedded key-value store. Vector ranking is an
//     in-process cosine scan, so it always reports vector capability.
//   - storage/sqlstore: gorm over SQLite or PostgreSQL. Vector capability
//     depends on the pgvector extension and is checked once when opened.
//
// # Architecture
//
//   - IndexRepository: searchable projections of source entities
//   - QueryLogRepository: executed search analytics
//   - CheckpointRepository: resumable rebuild job state
//   - OutboxRepository: change events awaiting asynchronous indexing
//
// Metadata filters are described by Filter and evaluated with Filter.Match on
// every backend, so the semantics of a filter never depend on the store.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
