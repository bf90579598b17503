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


// Package index holds the two in-process search indexes and the lock that
// keeps them consistent with each other.
//
//   - VectorIndex: cosine similarity over normalized embeddings, with
//     atomic batch embedding and binary snapshots
//   - LexicalIndex: BM25 keyword relevance, rebuilt from the whole corpus
//     and swapped in atomically
//   - Catalog: one reader/writer lock spanning both indexes and the
//     document store, so readers never observe a half-applied mutation
//
// The lexical index is rebuilt from every document on each mutation. That is
// linear in corpus size and fine for small-to-moderate corpora.
package index
