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


package core

import (
	"fmt"
	"math"
	"strings"
)

// ValidateDocument validates a Document according to domain rules
// and fills in defaults.
//
// Validation rules:
//   - ID may be empty (assigned on insert) but not whitespace-only
//   - Text may be empty
//
// Defaults:
//   - Metadata becomes an empty map when nil
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: %w: document is nil", ErrInvalidInput, ErrInvalidDocument)
	}

	if doc.ID != "" && strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("%w: %w: id is blank", ErrInvalidInput, ErrInvalidDocument)
	}

	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	return nil
}

// ValidateQuery rejects empty and whitespace-only queries.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrEmptyQuery)
	}
	return nil
}

// ValidateWeight rejects hybrid weights outside [0, 1].
func ValidateWeight(weight float64) error {
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return fmt.Errorf("%w: %w: got %v", ErrInvalidInput, ErrInvalidWeight, weight)
	}
	return nil
}
