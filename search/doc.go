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


// Package search provides hybrid semantic and keyword search.
//
// The Searcher type blends two signals into one score per document:
//   - Semantic similarity: cosine between query and document embeddings,
//     mapped from [-1, 1] onto [0, 1] as (1+cos)/2
//   - Keyword relevance: BM25 normalized by the best score of the query
//
// The blend is weight*semantic + (1-weight)*keyword. Results are ordered by
// score descending with ties broken by document id, so identical inputs
// always produce identical rankings.
package search
