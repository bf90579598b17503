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


// Package rag answers questions from retrieved context.
//
// An Orchestrator runs one request through these states:
//
//	RECEIVED -> CONTEXT_SEARCHED -> CONTEXT_FOUND -> PROMPT_BUILT -> LLM_CALLED -> ANSWERED
//	                             \-> NO_CONTEXT -> ANSWERED
//
// Any failure ends in FAILED. When no retrieved document scores above the
// minimum score, the fixed NoContextAnswer is returned and the language
// model is never called.
package rag
