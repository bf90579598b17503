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

import "errors"

// Error kinds surfaced by every component. Callers test for them with errors.Is.
var (
	// ErrInvalidInput indicates a malformed request (empty query, bad document, bad weight).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotInitialized indicates an operation ran before its index or model was set up.
	ErrNotInitialized = errors.New("not initialized")

	// ErrUpstream indicates the embedding model, LLM backend or message log failed.
	ErrUpstream = errors.New("upstream failure")

	// ErrNotFound indicates an id-based lookup or delete missed.
	ErrNotFound = errors.New("not found")
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyQuery indicates a blank query string.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidWeight indicates a hybrid weight outside [0, 1].
	ErrInvalidWeight = errors.New("weight must be between 0 and 1")
)

// Kind names the error kind of err for structured responses.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrUpstream):
		return "upstream_failure"
	}
	return "internal"
}
