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


// Package hashing provides a local embedder based on signed feature hashing.
//
// Each content token is hashed with BLAKE2b into one of a fixed number of
// buckets with a +1 or -1 sign, and the resulting vector is L2-normalized.
// Texts sharing words end up close together. No model or network access is
// needed, which makes it useful for development and offline indexing.
package hashing

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/core"
)

// Embedder implements ai.Embedder with feature hashing.
type Embedder struct {
	dim int
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates a hashing embedder producing vectors of config.EmbeddingDimensions.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return New(config.EmbeddingDimensions), nil
}

// New returns a hashing embedder of the given dimension.
func New(dim int) *Embedder {
	if dim < 1 {
		dim = 1
	}
	return &Embedder{dim: dim}
}

// EmbedText hashes the content tokens of text into a normalized vector.
// Text without content tokens yields the zero vector.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make([]float32, e.dim)
	for _, token := range core.ContentTokens(text) {
		h, _ := blake2b.New(8, nil)
		h.Write([]byte(token))
		sum := binary.LittleEndian.Uint64(h.Sum(nil))

		bucket := int(sum % uint64(e.dim))
		if sum&(1<<63) != 0 {
			vector[bucket]--
		} else {
			vector[bucket]++
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= inv
		}
	}
	return vector, nil
}

// EmbedTexts embeds each text independently.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}
