// Package redis implements storage.MessageLog on Redis Streams.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/storage"
)

const pendingPageSize = 1000

// MessageLog is a storage.MessageLog backed by Redis Streams consumer groups.
type MessageLog struct {
	client goredis.UniversalClient
}

var _ storage.MessageLog = (*MessageLog)(nil)

// Open connects to the Redis server at url (redis://[:password@]host:port/db)
// and verifies the connection.
func Open(ctx context.Context, url string) (*MessageLog, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %w", core.ErrInvalidInput, err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis unreachable: %w", core.ErrUpstream, err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient) *MessageLog {
	return &MessageLog{client: client}
}

// Close closes the client.
func (l *MessageLog) Close() error {
	return l.client.Close()
}

// CreateGroup creates group at the start of channel, creating the stream if needed.
func (l *MessageLog) CreateGroup(ctx context.Context, channel, group string) error {
	err := l.client.XGroupCreateMkStream(ctx, channel, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return upstream(err)
	}
	return nil
}

// Publish appends fields to channel.
func (l *MessageLog) Publish(ctx context.Context, channel string, fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: entry has no fields", core.ErrInvalidInput)
	}
	id, err := l.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: channel,
		Values: toValues(fields),
	}).Result()
	if err != nil {
		return "", upstream(err)
	}
	return id, nil
}

// Read delivers new entries of channel to consumer.
func (l *MessageLog) Read(ctx context.Context, channel, group, consumer string, count int, block time.Duration) ([]storage.LogEntry, error) {
	if count <= 0 {
		count = 1
	}
	streams, err := l.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{channel, ">"},
		Count:    int64(count),
		Block:    blockArg(block),
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, upstream(err)
	}

	var entries []storage.LogEntry
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			entries = append(entries, storage.LogEntry{ID: msg.ID, Fields: fromValues(msg.Values)})
		}
	}
	return entries, nil
}

// Ack acknowledges ids for group.
func (l *MessageLog) Ack(ctx context.Context, channel, group string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := l.client.XAck(ctx, channel, group, ids...).Result()
	if err != nil {
		return 0, upstream(err)
	}
	return int(n), nil
}

// Pending lists unacknowledged entries of consumer, or of the whole group
// when consumer is empty.
func (l *MessageLog) Pending(ctx context.Context, channel, group, consumer string) ([]string, error) {
	var ids []string
	start := "-"
	for {
		page, err := l.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
			Stream:   channel,
			Group:    group,
			Start:    start,
			End:      "+",
			Count:    pendingPageSize,
			Consumer: consumer,
		}).Result()
		if err != nil {
			return nil, upstream(err)
		}
		for _, p := range page {
			ids = append(ids, p.ID)
		}
		if len(page) < pendingPageSize {
			return ids, nil
		}
		start = "(" + page[len(page)-1].ID
	}
}

func toValues(fields map[string]string) map[string]any {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return values
}

func fromValues(values map[string]any) map[string]string {
	fields := make(map[string]string, len(values))
	for k, v := range values {
		switch s := v.(type) {
		case string:
			fields[k] = s
		case []byte:
			fields[k] = string(s)
		default:
			fields[k] = fmt.Sprint(v)
		}
	}
	return fields
}

// blockArg maps "no wait" onto go-redis, where a zero Block waits forever
// and a negative one omits the BLOCK option.
func blockArg(block time.Duration) time.Duration {
	if block <= 0 {
		return -1
	}
	if block < time.Millisecond {
		return time.Millisecond
	}
	return block
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func upstream(err error) error {
	if strings.HasPrefix(err.Error(), "NOGROUP") {
		return fmt.Errorf("%w: %s", storage.ErrGroupNotFound, err.Error())
	}
	return fmt.Errorf("%w: redis: %w", core.ErrUpstream, err)
}
