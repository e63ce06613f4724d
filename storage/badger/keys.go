package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/marketsearch/core"
)

const (
	entryPrefix       = "idxent:"
	entrySourcePrefix = "idxsrc:"
	entryKindPrefix   = "idxkind:"
	queryLogPrefix    = "qlog:"
	checkpointPrefix  = "rebuild:"
	outboxPrefix      = "outbox:"

	entryIDSeq    = "seq:idxent"
	queryLogIDSeq = "seq:qlog"
	outboxIDSeq   = "seq:outbox"

	sourceDigestSize = 16
)

// makeEntryKey generates the primary key for an index entry.
// Format: prefix + 8-byte big-endian id
func makeEntryKey(id core.ID) []byte {
	buf := make([]byte, len(entryPrefix)+8)
	offset := copy(buf, entryPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// idFromEntryKey extracts the entry id from a primary key.
func idFromEntryKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(entryPrefix):]))
}

// makeSourceKey generates the lookup key for a (kind, id) pair.
// Source ids are arbitrary strings, so the pair is hashed to a fixed-size digest.
// Format: prefix + blake2b(kind \x00 id)
func makeSourceKey(kind, sourceID string) []byte {
	h, _ := blake2b.New(sourceDigestSize, nil)
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(sourceID))
	sum := h.Sum(nil)

	buf := make([]byte, 0, len(entrySourcePrefix)+len(sum))
	buf = append(buf, entrySourcePrefix...)
	return append(buf, sum...)
}

// makeKindKey generates a composite key for the kind index.
// Format: prefix + blake2b(kind) + 8-byte big-endian id
func makeKindKey(kind string, id core.ID) []byte {
	prefix := makePartialKindKey(kind)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialKindKey generates the prefix of every kind index key for kind.
// The kind is hashed so one kind is never a prefix of another.
func makePartialKindKey(kind string) []byte {
	h, _ := blake2b.New(sourceDigestSize, nil)
	h.Write([]byte(kind))
	sum := h.Sum(nil)

	buf := make([]byte, 0, len(entryKindPrefix)+len(sum))
	buf = append(buf, entryKindPrefix...)
	return append(buf, sum...)
}

// idFromKindKey extracts the entry id from a kind index key.
func idFromKindKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeQueryLogKey generates a key ordered by timestamp, then id.
// Format: prefix + 8-byte timestamp (microseconds) + 8-byte id
func makeQueryLogKey(ts time.Time, id core.ID) []byte {
	buf := make([]byte, len(queryLogPrefix)+16)
	offset := copy(buf, queryLogPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(ts.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeCheckpointKey generates a key for rebuild job checkpoints.
func makeCheckpointKey(jobID string) []byte {
	return []byte(fmt.Sprintf("%s%s:chkpt", checkpointPrefix, jobID))
}

// makeOutboxKey generates a key ordered by event id.
func makeOutboxKey(id core.ID) []byte {
	buf := make([]byte, len(outboxPrefix)+8)
	offset := copy(buf, outboxPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}
