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


package core

import "errors"

// Domain errors
var (
	// ErrInvalidEntity indicates a source entity could not produce a search document.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrEmbeddingUnavailable indicates the embedding provider failed or timed out.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrBackendUnsupported indicates the store cannot perform vector operations.
	ErrBackendUnsupported = errors.New("backend does not support vector operations")

	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrEmptySourceKind indicates an entity reported no kind tag.
	ErrEmptySourceKind = errors.New("source kind cannot be empty")

	// ErrEmptySourceID indicates an entity reported no primary key.
	ErrEmptySourceID = errors.New("source id cannot be empty")

	// ErrDimensionMismatch indicates a vector does not have the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
