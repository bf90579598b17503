package core

import (
	"errors"
	"math"
	"testing"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{name: "valid document", doc: &Document{ID: "1", Text: "Hello world"}},
		{name: "empty id is assigned later", doc: &Document{Text: "Hello"}},
		{name: "empty text is allowed", doc: &Document{ID: "1"}},
		{name: "nil document", doc: nil, wantErr: ErrInvalidDocument},
		{name: "blank id", doc: &Document{ID: "   ", Text: "x"}, wantErr: ErrInvalidDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateDocument() unexpected error: %v", err)
				}
				if tt.doc.Metadata == nil {
					t.Error("ValidateDocument() left metadata nil")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ValidateDocument() error = %v, want kind ErrInvalidInput", err)
			}
		})
	}
}

func TestValidateQuery(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n"} {
		if err := ValidateQuery(q); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ValidateQuery(%q) = %v, want ErrInvalidInput", q, err)
		}
	}
	if err := ValidateQuery("what is AI"); err != nil {
		t.Errorf("ValidateQuery() unexpected error: %v", err)
	}
}

func TestValidateWeight(t *testing.T) {
	for _, w := range []float64{0, 0.5, 1} {
		if err := ValidateWeight(w); err != nil {
			t.Errorf("ValidateWeight(%v) unexpected error: %v", w, err)
		}
	}
	for _, w := range []float64{-0.1, 1.01, math.NaN()} {
		if err := ValidateWeight(w); !errors.Is(err, ErrInvalidWeight) {
			t.Errorf("ValidateWeight(%v) = %v, want ErrInvalidWeight", w, err)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidInput, "invalid_input"},
		{ValidateQuery(""), "invalid_input"},
		{ErrNotFound, "not_found"},
		{ErrNotInitialized, "not_initialized"},
		{errors.Join(ErrUpstream, errors.New("timeout")), "upstream_failure"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
