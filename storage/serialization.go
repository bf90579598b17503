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


package storage

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/ragrelay/core"
)

// VectorMUS encodes a float32 vector as a varint length followed by raw floats.
var VectorMUS = vectorSer{}

type vectorSer struct{}

func (vectorSer) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (vectorSer) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	// Each float occupies 4 bytes; reject lengths the buffer cannot hold.
	if length > uint64(len(bs)-n)/4 {
		return nil, n, ErrTruncatedData
	}
	v = make([]float32, length)
	for i := range v {
		f, m, err := raw.Float32.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, n, err
		}
		v[i] = f
	}
	return v, n, nil
}

func (vectorSer) Size(v []float32) (size int) {
	size = varint.Uint64.Size(uint64(len(v)))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

// FieldsMUS encodes a string map as a varint count followed by sorted key/value pairs.
var FieldsMUS = fieldsSer{}

type fieldsSer struct{}

func (fieldsSer) Marshal(m map[string]string, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(m)), bs)
	for _, k := range sortedKeys(m) {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(m[k], bs[n:])
	}
	return n
}

func (fieldsSer) Unmarshal(bs []byte) (m map[string]string, n int, err error) {
	count, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	// Every pair needs at least two length bytes.
	if count > uint64(len(bs)-n)/2 {
		return nil, n, ErrTruncatedData
	}
	m = make(map[string]string, count)
	for i := uint64(0); i < count; i++ {
		k, kn, err := ord.String.Unmarshal(bs[n:])
		n += kn
		if err != nil {
			return nil, n, err
		}
		v, vn, err := ord.String.Unmarshal(bs[n:])
		n += vn
		if err != nil {
			return nil, n, err
		}
		m[k] = v
	}
	return m, n, nil
}

func (fieldsSer) Size(m map[string]string) (size int) {
	size = varint.Uint64.Size(uint64(len(m)))
	for k, v := range m {
		size += ord.String.Size(k) + ord.String.Size(v)
	}
	return size
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// documentRecord is the persisted shape of a core.Document.
// Metadata is kept as JSON since its values are arbitrary JSON scalars and objects.
type documentRecord struct {
	ID         string
	Text       string
	Metadata   string
	Vector     []float32
	InsertedAt int64 // Unix micros
}

var documentMUS = documentSer{}

type documentSer struct{}

func (documentSer) Marshal(r documentRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.ID, bs)
	n += ord.String.Marshal(r.Text, bs[n:])
	n += ord.String.Marshal(r.Metadata, bs[n:])
	n += VectorMUS.Marshal(r.Vector, bs[n:])
	n += varint.Int64.Marshal(r.InsertedAt, bs[n:])
	return n
}

func (documentSer) Unmarshal(bs []byte) (r documentRecord, n int, err error) {
	var m int
	if r.ID, m, err = ord.String.Unmarshal(bs); err != nil {
		return r, m, err
	}
	n += m
	if r.Text, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return r, n + m, err
	}
	n += m
	if r.Metadata, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return r, n + m, err
	}
	n += m
	if r.Vector, m, err = VectorMUS.Unmarshal(bs[n:]); err != nil {
		return r, n + m, err
	}
	n += m
	if r.InsertedAt, m, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return r, n + m, err
	}
	return r, n + m, nil
}

func (documentSer) Size(r documentRecord) int {
	return ord.String.Size(r.ID) +
		ord.String.Size(r.Text) +
		ord.String.Size(r.Metadata) +
		VectorMUS.Size(r.Vector) +
		varint.Int64.Size(r.InsertedAt)
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) ([]byte, error) {
	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", ErrSerializationFailed, err)
	}

	record := documentRecord{
		ID:       doc.ID,
		Text:     doc.Text,
		Metadata: string(meta),
		Vector:   doc.Vector,
	}
	if !doc.InsertedAt.IsZero() {
		record.InsertedAt = doc.InsertedAt.UnixMicro()
	}

	buf := make([]byte, documentMUS.Size(record))
	documentMUS.Marshal(record, buf)
	return buf, nil
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	record, _, err := documentMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}

	metadata := map[string]any{}
	if record.Metadata != "" {
		if err := json.Unmarshal([]byte(record.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %w", ErrSerializationFailed, err)
		}
	}

	doc := &core.Document{
		ID:       record.ID,
		Text:     record.Text,
		Metadata: metadata,
		Vector:   record.Vector,
	}
	if record.InsertedAt != 0 {
		doc.InsertedAt = time.UnixMicro(record.InsertedAt).UTC()
	}
	return doc, nil
}

// MarshalFields serializes log entry fields to bytes.
func MarshalFields(fields map[string]string) []byte {
	buf := make([]byte, FieldsMUS.Size(fields))
	FieldsMUS.Marshal(fields, buf)
	return buf
}

// UnmarshalFields deserializes log entry fields from bytes.
func UnmarshalFields(data []byte) (map[string]string, error) {
	fields, _, err := FieldsMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return fields, nil
}
