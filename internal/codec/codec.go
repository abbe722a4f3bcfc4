package codec

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/model"
	"github.com/vmihailenco/msgpack/v5"
)

// SerializeMutation encodes a Mutation into its on-disk wire representation.
func SerializeMutation(m *model.Mutation) ([]byte, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize mutation: %w", err)
	}
	return data, nil
}

// DeserializeMutation decodes a Mutation from its on-disk wire representation.
// Corruption surfaces as a *errors.HandoffError with ErrCodeCorruptMutation at
// the caller, not here; this function only reports the raw decode failure.
func DeserializeMutation(data []byte) (*model.Mutation, error) {
	var m model.Mutation
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to deserialize mutation: %w", err)
	}
	return &m, nil
}

// TTLFor computes the hint's TTL in seconds as the minimum grace window
// across the mutation's column families, mirroring gc_grace_seconds
// aggregation: a hint is only as durable as the column family with the
// shortest retention window, since replaying past that window could
// resurrect data a tombstone already deleted.
func TTLFor(m *model.Mutation) int64 {
	if len(m.ColumnFamilies) == 0 {
		return 0
	}
	min := m.ColumnFamilies[0].GraceWindow
	for _, cf := range m.ColumnFamilies[1:] {
		if cf.GraceWindow < min {
			min = cf.GraceWindow
		}
	}
	return int64(min.Seconds())
}

// StripTruncated returns a copy of m without every column family that
// truncatedAt records as truncated strictly after the hint's writetime;
// families truncated at or before the writetime, or absent from truncatedAt,
// are kept. truncatedAt maps column family ID to the truncation timestamp in
// milliseconds.
func StripTruncated(m *model.Mutation, writetimeMS int64, truncatedAt map[string]int64) *model.Mutation {
	out := &model.Mutation{Keyspace: m.Keyspace, Key: m.Key}
	for _, cf := range m.ColumnFamilies {
		if tsMS, ok := truncatedAt[cf.ID.String()]; ok && tsMS > writetimeMS {
			continue
		}
		out.ColumnFamilies = append(out.ColumnFamilies, cf)
	}
	return out
}

// ErrUnknownColumnFamily indicates a mutation's bytes decoded cleanly but
// reference a column family no longer present in the local schema, the
// schema-evolution case: the family was dropped after the hint was written
// and is neither corruption nor something safe to replay.
var ErrUnknownColumnFamily = errors.New("mutation references a column family unknown to the local schema")

// ColumnFamilyCatalog reports whether a column family is still defined in
// the local schema, consulted before a hint's mutation is dispatched so a
// family dropped by schema evolution since the hint was written can be
// discarded instead of replayed or treated as corrupt.
type ColumnFamilyCatalog interface {
	HasColumnFamily(id uuid.UUID) bool
}

// ValidateColumnFamilies returns ErrUnknownColumnFamily if any column family
// m references is absent from catalog. A nil catalog accepts every mutation,
// for deployments that have not wired a schema catalog.
func ValidateColumnFamilies(m *model.Mutation, catalog ColumnFamilyCatalog) error {
	if catalog == nil {
		return nil
	}
	for _, cf := range m.ColumnFamilies {
		if !catalog.HasColumnFamily(cf.ID) {
			return ErrUnknownColumnFamily
		}
	}
	return nil
}

// TruncationTracker reports the most recent truncation time recorded for a
// column family, feeding StripTruncated so a session can avoid replaying a
// write that a subsequent truncation has already superseded.
type TruncationTracker interface {
	TruncatedAt(cfID uuid.UUID) (truncationTimeMS int64, ok bool)
}
