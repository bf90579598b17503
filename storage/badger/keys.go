package badger

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/ragrelay/core"
)

// Key prefixes for different data types
const (
	documentPrefix  = "docrec:"
	documentIDSeq   = "docrecseq"
	logEntryPrefix  = "logent"
	logGroupPrefix  = "loggrp"
	logPendPrefix   = "logpen"
	logSequenceName = "logseq"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(documentPrefix + id)
}

// documentIDFromKey recovers the document ID from a document key.
func documentIDFromKey(key []byte) core.ID {
	return core.ID(strings.TrimPrefix(string(key), documentPrefix))
}

// makeLogEntryPrefix generates the iteration prefix for a channel's entries.
// Format: prefix:channel:
func makeLogEntryPrefix(channel string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", logEntryPrefix, channel))
}

// makeLogEntryKey generates a composite key for a log entry.
// Format: prefix:channel:seq with seq in BigEndian so lexicographic order is publish order.
func makeLogEntryKey(channel string, seq uint64) []byte {
	return appendSeq(makeLogEntryPrefix(channel), seq)
}

// makeLogGroupKey generates the key holding a group's last delivered sequence.
func makeLogGroupKey(channel, group string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", logGroupPrefix, channel, group))
}

// makeLogPendingPrefix generates the iteration prefix for a group's pending entries.
// Format: prefix:channel:group:
func makeLogPendingPrefix(channel, group string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:", logPendPrefix, channel, group))
}

// makeLogPendingKey generates the key marking an entry as delivered but unacknowledged.
// The value is the name of the consumer that holds it.
func makeLogPendingKey(channel, group string, seq uint64) []byte {
	return appendSeq(makeLogPendingPrefix(channel, group), seq)
}

// makeLogSequenceName names the badger sequence allocating a channel's entry ids.
func makeLogSequenceName(channel string) string {
	return logSequenceName + ":" + channel
}

func appendSeq(prefix []byte, seq uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// seqFromKey reads the trailing 8-byte sequence of an entry or pending key.
func seqFromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// formatEntryID renders a sequence in the "<seq>-0" form used by stream logs.
func formatEntryID(seq uint64) string {
	return strconv.FormatUint(seq, 10) + "-0"
}

// parseEntryID is the inverse of formatEntryID.
func parseEntryID(id string) (uint64, error) {
	head, _, _ := strings.Cut(id, "-")
	seq, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed entry id %q", core.ErrInvalidInput, id)
	}
	return seq, nil
}
