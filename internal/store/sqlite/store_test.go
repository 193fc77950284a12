package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starlink-api/internal/position"
	"starlink-api/internal/store"
	"starlink-api/internal/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "positions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Suite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTemp(t) })
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "positions.db")
	ts := time.Date(2020, 5, 24, 16, 25, 6, 0, time.UTC)

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.InsertBatch(ctx, []position.Record{{ObjectID: "2019-029D", CreationTime: ts, Latitude: position.Float(12.5), Longitude: position.Float(-45.1)}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LastKnown(ctx, "2019-029D", ts)
	require.NoError(t, err)
	assert.Equal(t, 12.5, *got.Latitude)
	assert.Equal(t, -45.1, *got.Longitude)
	assert.Equal(t, time.UTC, got.CreationTime.Location())
}

