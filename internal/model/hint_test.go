package model_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestHint_Expired(t *testing.T) {
	now := time.Now().UnixMilli()

	cases := []struct {
		name    string
		hint    model.Hint
		nowMS   int64
		expired bool
	}{
		{
			name:    "well within ttl",
			hint:    model.Hint{WritetimeMS: now, TTLSeconds: 3600},
			nowMS:   now + 1000,
			expired: false,
		},
		{
			name:    "exactly at boundary is not expired",
			hint:    model.Hint{WritetimeMS: now, TTLSeconds: 10},
			nowMS:   now + 10*1000,
			expired: false,
		},
		{
			name:    "past ttl",
			hint:    model.Hint{WritetimeMS: now, TTLSeconds: 10},
			nowMS:   now + 10*1000 + 1,
			expired: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expired, tc.hint.Expired(tc.nowMS))
		})
	}
}

func TestMutation_WithoutAndIsEmpty(t *testing.T) {
	cf1 := model.ColumnFamily{ID: uuid.New(), Name: "cf1"}
	cf2 := model.ColumnFamily{ID: uuid.New(), Name: "cf2"}
	m := &model.Mutation{
		Keyspace:       "ks",
		Key:            "k",
		ColumnFamilies: []model.ColumnFamily{cf1, cf2},
	}

	assert.False(t, m.IsEmpty())

	without := m.Without(cf1.ID)
	assert.Len(t, without.ColumnFamilies, 1)
	assert.Equal(t, cf2.ID, without.ColumnFamilies[0].ID)
	assert.Len(t, m.ColumnFamilies, 2, "Without must not mutate the receiver")

	emptied := without.Without(cf2.ID)
	assert.True(t, emptied.IsEmpty())
}
