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


// Package search ranks index entries for free-text queries.
//
// The Searcher embeds the query and orders embedded entries by ascending
// cosine distance, dropping matches beyond the configured threshold. When the
// store has no vector capability, the provider fails, or nothing is close
// enough, it falls back to case-insensitive keyword matching, newest first.
// Kind and metadata filters apply to both paths, and equal distances are
// broken by ascending entry id so results are reproducible.
package search
