package core

import (
	"sort"
	"testing"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same fingerprint", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Fingerprint(tt.content) != Fingerprint(tt.content) {
				t.Errorf("Fingerprint() differs for identical content %q", tt.content)
			}
		})
	}

	if Fingerprint("a") == Fingerprint("b") {
		t.Error("Fingerprint() collided for different content")
	}
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"9", "10", -1},
		{"10", "9", 1},
		{"7", "7", 0},
		{"1", "01", 1},
		{"01", "1", -1},
		{"001", "01", -1},
		{"10", "abc", -1},
		{"abc", "10", 1},
		{"abc", "abd", -1},
		{"doc-b", "doc-a", 1},
	}

	for _, tt := range tests {
		if got := CompareIDs(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareIDs(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}

	ids := []string{"b", "10", "2", "a", "1"}
	sort.Slice(ids, func(i, j int) bool { return CompareIDs(ids[i], ids[j]) < 0 })
	want := []string{"1", "2", "10", "a", "b"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("sorted ids = %v, want %v", ids, want)
		}
	}
}

func TestDocumentClone(t *testing.T) {
	doc := &Document{
		ID:       "1",
		Text:     "hello",
		Metadata: map[string]any{"source": "a"},
		Vector:   []float32{1, 0},
	}

	clone := doc.Clone()
	clone.Metadata["source"] = "b"
	clone.Vector[0] = 0

	if doc.Metadata["source"] != "a" {
		t.Error("Clone() shares metadata with the original")
	}
	if doc.Vector[0] != 1 {
		t.Error("Clone() shares vector with the original")
	}
}

func TestSourceLabel(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		want     string
	}{
		{name: "source wins", metadata: map[string]any{"source": "wiki", "title": "AI"}, want: "wiki"},
		{name: "title fallback", metadata: map[string]any{"title": "AI"}, want: "AI"},
		{name: "url fallback", metadata: map[string]any{"url": "http://x"}, want: "http://x"},
		{name: "non-string ignored", metadata: map[string]any{"source": 5}, want: "document 42"},
		{name: "blank ignored", metadata: map[string]any{"source": "  "}, want: "document 42"},
		{name: "empty metadata", metadata: map[string]any{}, want: "document 42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ScoredResult{ID: "42", Metadata: tt.metadata}
			if got := r.SourceLabel(); got != tt.want {
				t.Errorf("SourceLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}
