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


package index

import (
	"math"
	"sync/atomic"

	"github.com/poiesic/ragrelay/core"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Tokenize splits text into the terms used for both indexing and querying.
func Tokenize(text string) []string {
	return core.Tokenize(text)
}

type posting struct {
	id core.ID
	tf int
}

// bm25Model is an immutable snapshot of corpus statistics.
type bm25Model struct {
	postings map[string][]posting
	lengths  map[core.ID]int
	avgLen   float64
	n        int
}

// LexicalIndex scores documents with BM25. Rebuild swaps in a fresh model
// so concurrent scorers always see a complete one.
type LexicalIndex struct {
	model atomic.Pointer[bm25Model]
}

// NewLexicalIndex returns an empty lexical index.
func NewLexicalIndex() *LexicalIndex {
	l := &LexicalIndex{}
	l.model.Store(buildModel(nil))
	return l
}

// Rebuild replaces the model with one built from docs.
func (l *LexicalIndex) Rebuild(docs []*core.Document) {
	l.model.Store(buildModel(docs))
}

// Count returns the number of documents in the current model.
func (l *LexicalIndex) Count() int {
	return l.model.Load().n
}

// Score returns the raw BM25 score of every document matching at least one token.
func (l *LexicalIndex) Score(tokens []string) map[core.ID]float64 {
	model := l.model.Load()
	scores := make(map[core.ID]float64)
	if model.n == 0 {
		return scores
	}

	seen := make(map[string]struct{}, len(tokens))
	for _, term := range tokens {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		postings := model.postings[term]
		if len(postings) == 0 {
			continue
		}

		df := float64(len(postings))
		idf := math.Log((float64(model.n)-df+0.5)/(df+0.5) + 1)

		for _, p := range postings {
			tf := float64(p.tf)
			norm := 1 - bm25B
			if model.avgLen > 0 {
				norm += bm25B * float64(model.lengths[p.id]) / model.avgLen
			}
			scores[p.id] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}
	return scores
}

// ScoreText tokenizes query and scores it.
func (l *LexicalIndex) ScoreText(query string) map[core.ID]float64 {
	return l.Score(Tokenize(query))
}

func buildModel(docs []*core.Document) *bm25Model {
	model := &bm25Model{
		postings: make(map[string][]posting),
		lengths:  make(map[core.ID]int, len(docs)),
		n:        len(docs),
	}

	total := 0
	for _, doc := range docs {
		tokens := Tokenize(doc.Text)
		model.lengths[doc.ID] = len(tokens)
		total += len(tokens)

		counts := make(map[string]int)
		for _, tok := range tokens {
			counts[tok]++
		}
		for term, tf := range counts {
			model.postings[term] = append(model.postings[term], posting{id: doc.ID, tf: tf})
		}
	}

	if model.n > 0 {
		model.avgLen = float64(total) / float64(model.n)
	}
	return model
}
