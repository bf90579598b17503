package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/storage"
)

// MessageLog implements storage.MessageLog on BadgerDB.
//
// Entries live under logent:<channel>:<seq>. Each consumer group stores the last
// sequence it delivered; delivered entries are tracked under logpen until acked.
// Mutations are serialized by one mutex so sequence allocation and commit order
// agree, which keeps group cursors from skipping entries.
type MessageLog struct {
	backend *Backend

	mu       sync.Mutex
	seqs     map[string]*badger.Sequence
	notifies map[string]chan struct{}
}

var _ storage.MessageLog = (*MessageLog)(nil)

// NewMessageLog creates a message log sharing the backend's database.
func NewMessageLog(backend *Backend) *MessageLog {
	return &MessageLog{
		backend:  backend,
		seqs:     make(map[string]*badger.Sequence),
		notifies: make(map[string]chan struct{}),
	}
}

// Close releases the per-channel sequences. The backend stays open.
func (l *MessageLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for channel, seq := range l.seqs {
		if err := seq.Release(); err != nil {
			errs = append(errs, err)
		}
		delete(l.seqs, channel)
	}
	for channel, ch := range l.notifies {
		close(ch)
		delete(l.notifies, channel)
	}
	return errors.Join(errs...)
}

// CreateGroup creates group positioned before the first entry of channel.
func (l *MessageLog) CreateGroup(ctx context.Context, channel, group string) error {
	if err := validateNames(channel, group); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.backend.Update(func(tx *badger.Txn) error {
		key := makeLogGroupKey(channel, group)
		_, err := tx.Get(key)
		if err == nil {
			return nil // already exists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return tx.Set(key, encodeSeq(0))
	})
}

// Publish appends fields to channel and wakes blocked readers.
func (l *MessageLog) Publish(ctx context.Context, channel string, fields map[string]string) (string, error) {
	if err := validateNames(channel); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq, err := l.nextSeq(channel)
	if err != nil {
		return "", err
	}

	value := storage.MarshalFields(fields)
	err = l.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makeLogEntryKey(channel, seq), value)
	})
	if err != nil {
		return "", err
	}

	l.signalLocked(channel)
	return formatEntryID(seq), nil
}

// Read claims up to count undelivered entries for consumer, waiting up to
// block for entries to arrive. A non-positive block does not wait.
func (l *MessageLog) Read(ctx context.Context, channel, group, consumer string, count int, block time.Duration) ([]storage.LogEntry, error) {
	if err := validateNames(channel, group, consumer); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 1
	}

	var deadline <-chan time.Time
	if block > 0 {
		timer := time.NewTimer(block)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		l.mu.Lock()
		wake := l.waitChanLocked(channel)
		entries, err := l.claimLocked(channel, group, consumer, count)
		l.mu.Unlock()

		if err != nil || len(entries) > 0 || deadline == nil {
			return entries, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-wake:
		}
	}
}

// Ack clears pending entries and returns how many were pending.
func (l *MessageLog) Ack(ctx context.Context, channel, group string, ids ...string) (int, error) {
	if err := validateNames(channel, group); err != nil {
		return 0, err
	}

	seqs := make([]uint64, len(ids))
	for i, id := range ids {
		seq, err := parseEntryID(id)
		if err != nil {
			return 0, err
		}
		seqs[i] = seq
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var acked int
	err := l.backend.Update(func(tx *badger.Txn) error {
		acked = 0
		for _, seq := range seqs {
			key := makeLogPendingKey(channel, group, seq)
			_, err := tx.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
			acked++
		}
		return nil
	})
	return acked, err
}

// Pending lists unacknowledged entry ids held by consumer, in publish order.
func (l *MessageLog) Pending(ctx context.Context, channel, group, consumer string) ([]string, error) {
	if err := validateNames(channel, group); err != nil {
		return nil, err
	}

	var ids []string
	err := l.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeLogPendingPrefix(channel, group)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			owner, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if consumer == "" || string(owner) == consumer {
				ids = append(ids, formatEntryID(seqFromKey(item.Key())))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// claimLocked moves up to count entries past the group cursor into the
// consumer's pending list in one transaction.
func (l *MessageLog) claimLocked(channel, group, consumer string, count int) ([]storage.LogEntry, error) {
	var entries []storage.LogEntry
	err := l.backend.Update(func(tx *badger.Txn) error {
		entries = entries[:0]

		groupKey := makeLogGroupKey(channel, group)
		item, err := tx.Get(groupKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s/%s", storage.ErrGroupNotFound, channel, group)
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		last := decodeSeq(raw)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeLogEntryPrefix(channel)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeLogEntryKey(channel, last+1)); iter.Valid() && len(entries) < count; iter.Next() {
			entryItem := iter.Item()
			seq := seqFromKey(entryItem.Key())
			var fields map[string]string
			err := entryItem.Value(func(val []byte) error {
				var err error
				fields, err = storage.UnmarshalFields(val)
				return err
			})
			if err != nil {
				return err
			}
			entries = append(entries, storage.LogEntry{ID: formatEntryID(seq), Fields: fields})
			last = seq
		}

		if len(entries) == 0 {
			return nil
		}
		for _, entry := range entries {
			seq, _ := parseEntryID(entry.ID)
			if err := tx.Set(makeLogPendingKey(channel, group, seq), []byte(consumer)); err != nil {
				return err
			}
		}
		return tx.Set(groupKey, encodeSeq(last))
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *MessageLog) nextSeq(channel string) (uint64, error) {
	seq, ok := l.seqs[channel]
	if !ok {
		var err error
		seq, err = l.backend.GetSequence(makeLogSequenceName(channel))
		if err != nil {
			return 0, err
		}
		l.seqs[channel] = seq
	}
	for {
		next, err := seq.Next()
		if err != nil {
			return 0, err
		}
		// Sequence 0 is reserved as the initial group cursor
		if next != 0 {
			return next, nil
		}
	}
}

// waitChanLocked returns a channel closed on the next publish to channel.
func (l *MessageLog) waitChanLocked(channel string) <-chan struct{} {
	ch, ok := l.notifies[channel]
	if !ok {
		ch = make(chan struct{})
		l.notifies[channel] = ch
	}
	return ch
}

func (l *MessageLog) signalLocked(channel string) {
	if ch, ok := l.notifies[channel]; ok {
		close(ch)
		delete(l.notifies, channel)
	}
}

func validateNames(names ...string) error {
	for _, name := range names {
		if name == "" || strings.ContainsRune(name, ':') {
			return fmt.Errorf("%w: log name %q must be non-empty and contain no ':'", core.ErrInvalidInput, name)
		}
	}
	return nil
}

func encodeSeq(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

func decodeSeq(buf []byte) uint64 {
	if len(buf) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}
