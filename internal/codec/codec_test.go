package codec_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/codec"
	"github.com/pairdb/hintmgr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeMutation_RoundTrip(t *testing.T) {
	m := &model.Mutation{
		Keyspace: "ks",
		Key:      "partition-key",
		ColumnFamilies: []model.ColumnFamily{
			{ID: uuid.New(), Name: "cf1", GraceWindow: time.Hour, Columns: map[string][]byte{"a": []byte("1")}},
		},
	}

	data, err := codec.SerializeMutation(m)
	require.NoError(t, err)

	got, err := codec.DeserializeMutation(data)
	require.NoError(t, err)
	assert.Equal(t, m.Keyspace, got.Keyspace)
	assert.Equal(t, m.Key, got.Key)
	assert.Equal(t, m.ColumnFamilies[0].Name, got.ColumnFamilies[0].Name)
}

func TestDeserializeMutation_Corrupt(t *testing.T) {
	_, err := codec.DeserializeMutation([]byte{0xff, 0x00, 0x01})
	assert.Error(t, err)
}

func TestTTLFor_UsesMinimumGraceWindow(t *testing.T) {
	m := &model.Mutation{
		ColumnFamilies: []model.ColumnFamily{
			{GraceWindow: 2 * time.Hour},
			{GraceWindow: 30 * time.Minute},
			{GraceWindow: time.Hour},
		},
	}

	assert.Equal(t, int64(1800), codec.TTLFor(m))
}

func TestTTLFor_NoColumnFamilies(t *testing.T) {
	assert.Equal(t, int64(0), codec.TTLFor(&model.Mutation{}))
}

func TestStripTruncated_DropsFamiliesTruncatedAfterWritetime(t *testing.T) {
	cf1 := model.ColumnFamily{ID: uuid.New(), Name: "cf1"}
	cf2 := model.ColumnFamily{ID: uuid.New(), Name: "cf2"}
	m := &model.Mutation{ColumnFamilies: []model.ColumnFamily{cf1, cf2}}

	writetime := int64(1000)
	truncatedAt := map[string]int64{
		cf1.ID.String(): 1500, // truncated after writetime: dropped
		cf2.ID.String(): 500,  // truncated before writetime: kept
	}

	out := codec.StripTruncated(m, writetime, truncatedAt)
	require.Len(t, out.ColumnFamilies, 1)
	assert.Equal(t, cf2.ID, out.ColumnFamilies[0].ID)
}
