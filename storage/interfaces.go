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
	"context"
	"time"

	"github.com/poiesic/ragrelay/core"
)

// DocumentRepository is the canonical record of documents and their vectors.
// Both search indexes are rebuilt from it.
type DocumentRepository interface {
	// NextID allocates a fresh document id from the store's monotonic sequence.
	NextID(ctx context.Context) (core.ID, error)

	// PutDocuments stores documents atomically, replacing any with the same id.
	// Sets InsertedAt if not already set.
	PutDocuments(ctx context.Context, docs ...*core.Document) error

	// GetDocuments retrieves documents by id.
	// Returns only the documents that exist (no error for missing ids).
	GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error)

	// DeleteDocuments removes documents by id and returns how many existed.
	DeleteDocuments(ctx context.Context, ids ...core.ID) (int, error)

	// AllDocuments returns every stored document ordered by id.
	AllDocuments(ctx context.Context) ([]*core.Document, error)

	// CountDocuments returns the number of stored documents.
	CountDocuments(ctx context.Context) (int, error)

	// Close releases the repository's resources.
	Close() error
}

// LogEntry is one record read from a message log channel.
type LogEntry struct {
	ID     string
	Fields map[string]string
}

// MessageLog is an append-only, per-channel log with consumer-group delivery.
// Each entry is delivered to one consumer of a group and stays pending for
// that consumer until acknowledged.
type MessageLog interface {
	// CreateGroup creates a consumer group positioned at the start of the channel.
	// Creating an existing group is not an error.
	CreateGroup(ctx context.Context, channel, group string) error

	// Publish appends an entry and returns its id.
	Publish(ctx context.Context, channel string, fields map[string]string) (string, error)

	// Read delivers up to count entries never delivered to the group, waiting up
	// to block for new entries. An empty result with a nil error means nothing arrived.
	Read(ctx context.Context, channel, group, consumer string, count int, block time.Duration) ([]LogEntry, error)

	// Ack acknowledges delivered entries and returns how many were pending.
	Ack(ctx context.Context, channel, group string, ids ...string) (int, error)

	// Pending lists the ids delivered to consumer but not yet acknowledged.
	// An empty consumer lists pending entries of every consumer in the group.
	Pending(ctx context.Context, channel, group, consumer string) ([]string, error)

	// Close releases the log's resources.
	Close() error
}
