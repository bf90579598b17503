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


// Package storage provides the storage abstraction layer for ragrelay.
//
// This package defines the repository and message log interfaces that decouple
// storage implementation from retrieval and routing logic, plus the binary
// record codecs shared by every backend.
//
// # Architecture
//
//   - DocumentRepository: canonical documents with their embedding vectors
//   - MessageLog: per-channel append-only log with consumer groups
//
// The storage/badger package implements both on BadgerDB. The stream/redis
// package implements MessageLog on Redis Streams.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	docs, err := badger.NewDocumentRepository(backend)
//	log := badger.NewMessageLog(backend)
//
// Use in tests with in-memory storage:
//
//	docs, log, backend, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All implementations must be safe for concurrent use from multiple goroutines.
//
// # Context Support
//
// All methods accept context.Context for cancellation and timeout support.
package storage
