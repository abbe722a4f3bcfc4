// Package store implements a durable, ordered, cursor-paginated keyspace of
// hint rows keyed by (target_id, hint_id, message_version).
package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/model"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var hintsBucket = []byte("hints")

// Store is the durable hint row store backing the handoff manager. It is
// implemented on top of a single bbolt database file: bbolt's cursor gives
// us ordered, prefix-scannable iteration without running a separate database
// process, at the cost of having no native TTL — TTL and writetime are
// carried as fields on the serialized row instead of relying on a storage
// engine feature.
type Store struct {
	db     *bbolt.DB
	path   string
	logger *zap.Logger
	mu     sync.Mutex // serializes concurrent Compact calls
}

// Open opens (creating if necessary) the hint store at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open hint store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(hintsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize hint store bucket: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{db: db, path: path, logger: logger}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// rowKey packs (target_id, hint_id, message_version) into a lexicographically
// sortable byte key. Hint IDs are version 7 UUIDs, which begin with a
// big-endian millisecond timestamp, so a target's rows are returned
// oldest-first.
func rowKey(k model.HintKey) []byte {
	buf := make([]byte, 16+16+4)
	copy(buf[0:16], k.TargetID[:])
	copy(buf[16:32], k.HintID[:])
	binary.BigEndian.PutUint32(buf[32:36], uint32(k.MessageVersion))
	return buf
}

func parseRowKey(b []byte) (model.HintKey, error) {
	if len(b) != 36 {
		return model.HintKey{}, fmt.Errorf("malformed hint row key (len=%d)", len(b))
	}
	var target, hint uuid.UUID
	copy(target[:], b[0:16])
	copy(hint[:], b[16:32])
	return model.HintKey{
		TargetID:       target,
		HintID:         hint,
		MessageVersion: int(binary.BigEndian.Uint32(b[32:36])),
	}, nil
}

type rowValue struct {
	MutationBytes []byte
	WritetimeMS   int64
	TTLSeconds    int64
	Tombstone     bool
}

// Insert persists hint durably. Insert is idempotent on the hint's key: a
// retried insert for the same (target_id, hint_id, message_version) simply
// overwrites the prior row.
func (s *Store) Insert(hint model.Hint) error {
	val := rowValue{
		MutationBytes: hint.MutationBytes,
		WritetimeMS:   hint.WritetimeMS,
		TTLSeconds:    hint.TTLSeconds,
		Tombstone:     hint.Tombstone,
	}
	data, err := marshalRow(val)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(hintsBucket).Put(rowKey(hint.HintKey), data)
	})
}

// Scan returns up to pageSize hint rows for targetID, starting after cursor
// (nil for the first page). The returned Page's NextCursor is the key of the
// last row scanned, to be passed back on the following call; EndOfScan is
// true once the target's key range has been exhausted.
func (s *Store) Scan(targetID uuid.UUID, pageSize int, cursor []byte) (*model.Page, error) {
	if pageSize <= 0 {
		pageSize = 1
	}

	page := &model.Page{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(hintsBucket).Cursor()
		var k, v []byte
		if len(cursor) > 0 {
			k, v = c.Seek(cursor)
			// Seek lands on the first key >= cursor. If the cursor row still
			// exists, that's the row itself and we must step past it; if it
			// was deleted since the previous page (the common case once
			// delivered hints are removed), Seek already landed on the next
			// surviving row and advancing again would skip it.
			if k != nil && bytes.Equal(k, cursor) {
				k, v = c.Next()
			}
		} else {
			k, v = c.Seek(targetID[:])
		}

		for ; k != nil; k, v = c.Next() {
			key, err := parseRowKey(k)
			if err != nil {
				return err
			}
			if key.TargetID != targetID {
				page.EndOfScan = true
				return nil
			}

			row, err := unmarshalRow(v)
			if err != nil {
				return err
			}
			page.Rows = append(page.Rows, model.Hint{
				HintKey:       key,
				MutationBytes: row.MutationBytes,
				WritetimeMS:   row.WritetimeMS,
				TTLSeconds:    row.TTLSeconds,
				Tombstone:     row.Tombstone,
			})
			page.NextCursor = append([]byte{}, k...)

			if len(page.Rows) >= pageSize {
				return nil
			}
		}
		page.EndOfScan = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Delete removes a single hint row. Deletion is unconditional on the key and
// consults no writetime: a row re-inserted under the same key after it was
// read is removed as well. Neither Delete nor its callers in the handoff
// session compare writetimes before deleting.
func (s *Store) Delete(key model.HintKey) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(hintsBucket).Delete(rowKey(key))
	})
}

// BulkDelete removes many hint rows in a single transaction.
func (s *Store) BulkDelete(keys []model.HintKey) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(hintsBucket)
		for _, k := range keys {
			if err := b.Delete(rowKey(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteForEndpoint removes every hint row addressed to targetID.
func (s *Store) DeleteForEndpoint(targetID uuid.UUID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(hintsBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(targetID[:]); k != nil; k, _ = c.Next() {
			key, err := parseRowKey(k)
			if err != nil {
				return err
			}
			if key.TargetID != targetID {
				break
			}
			toDelete = append(toDelete, append([]byte{}, k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// TruncateAll discards every hint row in the store.
func (s *Store) TruncateAll() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(hintsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(hintsBucket)
		return err
	})
}

// DistinctTargets returns every target_id that currently has at least one
// hint row, in key order.
func (s *Store) DistinctTargets() ([]uuid.UUID, error) {
	var targets []uuid.UUID
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(hintsBucket).Cursor()
		var last uuid.UUID
		first := true
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			key, err := parseRowKey(k)
			if err != nil {
				return err
			}
			if first || key.TargetID != last {
				targets = append(targets, key.TargetID)
				last = key.TargetID
				first = false
			}
		}
		return nil
	})
	return targets, err
}

// IsEmptyForTarget reports whether targetID has no remaining hint rows.
func (s *Store) IsEmptyForTarget(targetID uuid.UUID) (bool, error) {
	empty := true
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(hintsBucket).Cursor()
		k, _ := c.Seek(targetID[:])
		if k != nil {
			key, err := parseRowKey(k)
			if err != nil {
				return err
			}
			empty = key.TargetID != targetID
		}
		return nil
	})
	return empty, err
}

// Flush forces the store's writes to stable storage.
func (s *Store) Flush() error {
	return s.db.Sync()
}

// Compact performs a blocking garbage-collection pass over tombstone rows
// older than olderThanMS, removing them to reclaim space. It returns the
// number of rows removed.
func (s *Store) Compact(olderThanMS int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(hintsBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			row, err := unmarshalRow(v)
			if err != nil {
				return err
			}
			if row.Tombstone && row.WritetimeMS < olderThanMS {
				toDelete = append(toDelete, append([]byte{}, k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("hint store compaction complete", zap.Int("rows_removed", removed))
	return removed, nil
}

// CompactAsync runs Compact in a background goroutine and invokes done (if
// non-nil) with its result once finished.
func (s *Store) CompactAsync(olderThanMS int64, done func(removed int, err error)) {
	go func() {
		removed, err := s.Compact(olderThanMS)
		if err != nil {
			s.logger.Error("hint store compaction failed", zap.Error(err))
		}
		if done != nil {
			done(removed, err)
		}
	}()
}

// SizeBytes returns the current on-disk size of the store file.
func (s *Store) SizeBytes() int64 {
	return s.db.Stats().TxStats.PageCount * int64(s.db.Info().PageSize)
}
