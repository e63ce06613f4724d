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

import (
	"fmt"
	"math"
)

// ValidateSourceKey validates a (kind, id) pair.
//
// Validation rules:
//   - Kind must not be empty after normalization
//   - ID must not be empty
func ValidateSourceKey(kind, id string) error {
	if NormalizeKind(kind) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, ErrEmptySourceKind)
	}
	if id == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, ErrEmptySourceID)
	}
	return nil
}

// ValidateEntry validates an IndexEntry before it is written.
//
// Validation rules:
//   - Source key must be valid
//   - Embedding, when present, must have dim components (dim <= 0 skips the check)
//
// NOT validated:
//   - Title length (truncated by PrepareEntry)
//   - ID (assigned by storage)
func ValidateEntry(entry *IndexEntry, dim int) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidEntity)
	}
	if err := ValidateSourceKey(entry.SourceKind, entry.SourceID); err != nil {
		return err
	}
	if entry.Embedding != nil {
		if err := ValidateEmbedding(entry.Embedding, dim); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEmbedding checks a vector's dimension and that every component is finite.
func ValidateEmbedding(vector []float32, dim int) error {
	if dim > 0 && len(vector) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dim)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrDimensionMismatch, i)
		}
	}
	return nil
}

// PrepareEntry normalizes an entry in place before storage.
// The kind is normalized and the title truncated to MaxTitleLength runes.
func PrepareEntry(entry *IndexEntry) {
	entry.SourceKind = NormalizeKind(entry.SourceKind)
	entry.Title = Truncate(entry.Title, MaxTitleLength)
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
}
