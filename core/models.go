package core

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for documents.
// Assigned identifiers are decimal renderings of a store-scoped sequence;
// caller-supplied identifiers may be any non-blank string.
type ID = string

// Fingerprint returns a stable 64-bit BLAKE2b digest of text content.
// Identical content always produces the identical fingerprint.
func Fingerprint(text string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// CompareIDs orders document ids deterministically.
// Numeric ids compare by value and sort before non-numeric ids,
// which compare lexically. Numeric ids of equal value ("1", "01")
// fall back to lexical order, so only identical ids compare equal.
func CompareIDs(a, b ID) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return strings.Compare(a, b)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// Document is the canonical record for a piece of indexed text.
type Document struct {
	ID         ID
	Text       string
	Metadata   map[string]any // Never nil once validated
	Vector     []float32      // Normalized embedding (populated by the vector index)
	InsertedAt time.Time      // When the document was stored
}

// Clone returns a copy that shares no mutable state with d.
func (d *Document) Clone() *Document {
	clone := *d
	if d.Metadata != nil {
		clone.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			clone.Metadata[k] = v
		}
	}
	if d.Vector != nil {
		clone.Vector = append([]float32(nil), d.Vector...)
	}
	return &clone
}

// ScoreBreakdown carries the components of a hybrid score.
type ScoreBreakdown struct {
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
	Combined float64 `json:"combined"`
}

// ScoredResult is a document matched by a query, with its relevance score.
// Results are produced per query and never persisted.
type ScoredResult struct {
	ID        ID             `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// SourceLabel returns a human-readable citation for the result.
// It prefers the "source", "title" and "url" metadata keys in that order
// and falls back to the document id.
func (r *ScoredResult) SourceLabel() string {
	for _, key := range []string{"source", "title", "url"} {
		if v, ok := r.Metadata[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return "document " + r.ID
}
