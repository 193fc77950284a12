package pg

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starlink-api/internal/config"
	"starlink-api/internal/migrate"
	"starlink-api/internal/position"
	"starlink-api/internal/store"
	"starlink-api/internal/store/storetest"
	"starlink-api/internal/utils"
)

func TestBuildInsert(t *testing.T) {
	ts := time.Date(2021, 1, 26, 6, 0, 0, 0, time.UTC)
	q, args := buildInsert([]position.Record{
		{ObjectID: "A", CreationTime: ts, Latitude: position.Float(1.5), Longitude: position.Float(-2)},
		{ObjectID: "B", CreationTime: ts, Latitude: position.Float(3)},
	})
	assert.Contains(t, q, "($1, $2, $3::geography, $4, $5, $6), ($7, $8, $9::geography, $10, $11, $12)")
	assert.True(t, strings.HasSuffix(q, "ON CONFLICT (object_id, creation_date) DO NOTHING RETURNING object_id"))
	require.Len(t, args, 12)

	assert.Equal(t, sql.NullString{String: "SRID=4326;POINT(-2 1.5)", Valid: true}, args[2])
	assert.Equal(t, true, args[5])
	assert.Equal(t, sql.NullString{}, args[8], "incomplete coordinates carry no location")
	assert.Equal(t, sql.NullFloat64{Float64: 3, Valid: true}, args[9])
	assert.Equal(t, sql.NullFloat64{}, args[10])
	assert.Equal(t, false, args[11])
}

func TestDedupe(t *testing.T) {
	ts := time.Date(2021, 1, 26, 6, 0, 0, 0, time.UTC)
	out, dup := dedupe([]position.Record{
		{ObjectID: "A", CreationTime: ts, Latitude: position.Float(1)},
		{ObjectID: "A", CreationTime: ts.Add(400 * time.Millisecond), Latitude: position.Float(2)},
		{ObjectID: "B", CreationTime: ts},
	})
	assert.Equal(t, 1, dup)
	require.Len(t, out, 2)
	assert.Equal(t, 1.0, *out[0].Latitude, "first occurrence wins")
}

func TestOpen_IncompleteDescriptor(t *testing.T) {
	_, err := Open(context.Background(), config.DB{User: "u", Password: "p", Host: "h", Port: "5432"})
	var ce *config.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, config.EnvName, ce.Param)
}

// PG_TEST_DSN 指向带 PostGIS 的测试库时运行完整行为用例
func TestPostgresStore_Suite(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	ctx := context.Background()
	storetest.Run(t, func(t *testing.T) store.Store {
		db, err := utils.OpenPostgres(dsn)
		require.NoError(t, err)
		require.NoError(t, migrate.EnsureSchema(ctx, db))
		_, err = db.ExecContext(ctx, `TRUNCATE satellite_locations`)
		require.NoError(t, err)
		s := New(db)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
