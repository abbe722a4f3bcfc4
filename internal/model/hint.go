package model

import (
	"time"

	"github.com/google/uuid"
)

// ColumnFamily is one table-shaped fragment of a Mutation: a set of column
// updates addressed at a single logical table within a Mutation's keyspace.
type ColumnFamily struct {
	ID          uuid.UUID
	Name        string
	GraceWindow time.Duration
	Columns     map[string][]byte
}

// Mutation is the write payload carried by a hint: a batch of column-family
// updates addressed to one partition key.
type Mutation struct {
	Keyspace      string
	Key           string
	ColumnFamilies []ColumnFamily
}

// IsEmpty reports whether every column family has been stripped from the
// mutation, which happens when replay-time truncation removes all of them.
func (m *Mutation) IsEmpty() bool {
	return len(m.ColumnFamilies) == 0
}

// Without returns a copy of the mutation with the named column family
// removed. It never mutates the receiver, since a Mutation may be shared
// across a page's worth of in-flight callbacks.
func (m *Mutation) Without(cfID uuid.UUID) *Mutation {
	out := &Mutation{Keyspace: m.Keyspace, Key: m.Key}
	for _, cf := range m.ColumnFamilies {
		if cf.ID != cfID {
			out.ColumnFamilies = append(out.ColumnFamilies, cf)
		}
	}
	return out
}

// HintKey is the composite primary key of a hint row:
// (target_id, hint_id, message_version).
type HintKey struct {
	TargetID       uuid.UUID
	HintID         uuid.UUID
	MessageVersion int
}

// Hint is a persisted, immutable record of a mutation queued for a
// currently-unreachable peer.
type Hint struct {
	HintKey
	MutationBytes []byte
	WritetimeMS   int64 // store-assigned writetime, milliseconds since epoch
	TTLSeconds    int64 // remaining TTL as of the read, in seconds
	Tombstone     bool  // true if the row is a residual delete marker
}

// Expired reports whether the hint's TTL has elapsed as of nowMS, using the
// corrected millisecond arithmetic (writetime_ms + ttl_s*1000 < now_ms).
// The original Cassandra implementation this module is modeled on multiplies
// TTL seconds by 10e9 and divides by 1000 against a millisecond writetime,
// which is a unit-mixing bug; this module uses the corrected formula.
func (h *Hint) Expired(nowMS int64) bool {
	return h.WritetimeMS+h.TTLSeconds*1000 < nowMS
}

// Page is one bounded batch of hint rows returned by a Store scan, together
// with an opaque cursor for retrieving the next batch.
type Page struct {
	Rows       []Hint
	NextCursor []byte // nil/empty means end-of-stream
	EndOfScan  bool
}
