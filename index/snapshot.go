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
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/storage"
)

const (
	snapshotMagic   = "RRVX"
	snapshotVersion = uint64(1)
)

// Save writes the index to path as a versioned binary snapshot:
// magic, version, dimension, entry count, then (id, vector) pairs in id order.
// The file is written to a temporary sibling and renamed into place.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	ids := make([]core.ID, 0, len(v.vectors))
	for id := range v.vectors {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, core.CompareIDs)

	dim := uint64(v.dim)
	count := uint64(len(ids))
	size := ord.String.Size(snapshotMagic) +
		varint.Uint64.Size(snapshotVersion) +
		varint.Uint64.Size(dim) +
		varint.Uint64.Size(count)
	for _, id := range ids {
		size += ord.String.Size(id) + storage.VectorMUS.Size(v.vectors[id])
	}

	bs := make([]byte, size)
	n := ord.String.Marshal(snapshotMagic, bs)
	n += varint.Uint64.Marshal(snapshotVersion, bs[n:])
	n += varint.Uint64.Marshal(dim, bs[n:])
	n += varint.Uint64.Marshal(count, bs[n:])
	for _, id := range ids {
		n += ord.String.Marshal(id, bs[n:])
		n += storage.VectorMUS.Marshal(v.vectors[id], bs[n:])
	}
	v.mu.RUnlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(bs[:n]); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	v.logger.Debug("saved snapshot", "path", path, "vectors", count, "dimension", dim)
	return nil
}

// Load replaces the index contents with the snapshot at path.
// The index is unchanged if the snapshot cannot be read.
// Load is for detached indexes: an index serving a Catalog must stay in
// step with the document store, which a snapshot does not change.
func (v *VectorIndex) Load(path string) error {
	bs, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	vectors, dim, err := decodeSnapshot(bs)
	if err != nil {
		return fmt.Errorf("failed to load snapshot %s: %w", path, err)
	}

	v.mu.Lock()
	v.vectors = vectors
	v.dim = dim
	v.mu.Unlock()

	v.logger.Debug("loaded snapshot", "path", path, "vectors", len(vectors), "dimension", dim)
	return nil
}

func decodeSnapshot(bs []byte) (map[core.ID][]float32, int, error) {
	magic, n, err := ord.String.Unmarshal(bs)
	if err != nil || magic != snapshotMagic {
		return nil, 0, ErrSnapshotFormat
	}

	version, m, err := varint.Uint64.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return nil, 0, ErrSnapshotFormat
	}
	if version != snapshotVersion {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrSnapshotFormat, version)
	}

	dim, m, err := varint.Uint64.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return nil, 0, ErrSnapshotFormat
	}

	count, m, err := varint.Uint64.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return nil, 0, ErrSnapshotFormat
	}
	if count > uint64(len(bs)) {
		return nil, 0, storage.ErrTruncatedData
	}

	vectors := make(map[core.ID][]float32, count)
	for i := uint64(0); i < count; i++ {
		id, m, err := ord.String.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, 0, fmt.Errorf("%w: entry %d: %w", ErrSnapshotFormat, i, err)
		}
		vec, m, err := storage.VectorMUS.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, 0, fmt.Errorf("%w: entry %d: %w", ErrSnapshotFormat, i, err)
		}
		if uint64(len(vec)) != dim {
			return nil, 0, fmt.Errorf("%w: entry %s has %d dimensions, want %d", ErrDimensionMismatch, id, len(vec), dim)
		}
		vectors[id] = vec
	}

	return vectors, int(dim), nil
}
