// Package storetest holds the behavioural suite every store engine must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starlink-api/internal/position"
	"starlink-api/internal/store"
)

// Factory returns an empty store; cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

var base = time.Date(2021, 1, 26, 6, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

func rec(id string, ts time.Time, lat, lon *float64) position.Record {
	return position.Record{ObjectID: id, CreationTime: ts, Latitude: lat, Longitude: lon}
}

func complete(id string, ts time.Time, lat, lon float64) position.Record {
	return rec(id, ts, position.Float(lat), position.Float(lon))
}

// Run executes every case against stores built by f.
func Run(t *testing.T, f Factory) {
	t.Run("InsertCountsAndDuplicates", func(t *testing.T) { testInsertCounts(t, f(t)) })
	t.Run("InsertIsIdempotent", func(t *testing.T) { testIdempotent(t, f(t)) })
	t.Run("DuplicateDoesNotAlterRow", func(t *testing.T) { testDuplicateKeepsRow(t, f(t)) })
	t.Run("EmptyBatch", func(t *testing.T) { testEmptyBatch(t, f(t)) })
	t.Run("LastKnownBackwardLookup", func(t *testing.T) { testLastKnown(t, f(t)) })
	t.Run("LastKnownNullCoordinates", func(t *testing.T) { testLastKnownNulls(t, f(t)) })
	t.Run("NearestNeighbour", func(t *testing.T) { testNearest(t, f(t)) })
	t.Run("NearestExactTimestampOnly", func(t *testing.T) { testNearestExact(t, f(t)) })
	t.Run("NearestSkipsIncomplete", func(t *testing.T) { testNearestIncomplete(t, f(t)) })
	t.Run("NearestTieBreak", func(t *testing.T) { testNearestTie(t, f(t)) })
	t.Run("NearestAcrossAntimeridian", func(t *testing.T) { testNearestAntimeridian(t, f(t)) })
	t.Run("LargeBatch", func(t *testing.T) { testLargeBatch(t, f(t)) })
}

func testInsertCounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	res, err := s.InsertBatch(ctx, []position.Record{
		complete("A", at(0), 1, 1),
		complete("A", at(1), 2, 2),
		complete("B", at(0), 3, 3),
		complete("A", at(0), 9, 9), // 同批次内重复
	})
	require.NoError(t, err)
	assert.Equal(t, store.InsertResult{Inserted: 3, Duplicates: 1}, res)

	res, err = s.InsertBatch(ctx, []position.Record{complete("B", at(0), 3, 3), complete("C", at(0), 4, 4)})
	require.NoError(t, err)
	assert.Equal(t, store.InsertResult{Inserted: 1, Duplicates: 1}, res)
}

func testIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	batch := []position.Record{
		complete("A", at(0), 1, 1),
		rec("A", at(5), nil, nil),
		complete("B", at(0), 2, 2),
	}
	first, err := s.InsertBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)

	second, err := s.InsertBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, store.InsertResult{Inserted: 0, Duplicates: 3}, second)
}

func testDuplicateKeepsRow(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertBatch(ctx, []position.Record{complete("A", at(0), 10, 20)})
	require.NoError(t, err)
	_, err = s.InsertBatch(ctx, []position.Record{complete("A", at(0), -10, -20)})
	require.NoError(t, err)

	got, err := s.LastKnown(ctx, "A", at(0))
	require.NoError(t, err)
	require.NotNil(t, got.Latitude)
	assert.Equal(t, 10.0, *got.Latitude)
	assert.Equal(t, 20.0, *got.Longitude)
}

func testEmptyBatch(t *testing.T, s store.Store) {
	res, err := s.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, store.InsertResult{}, res)
}

func testLastKnown(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertBatch(ctx, []position.Record{
		complete("X", at(10), 1, 1),
		complete("X", at(20), 2, 2),
		complete("X", at(30), 3, 3),
		complete("Y", at(25), 50, 50),
	})
	require.NoError(t, err)

	got, err := s.LastKnown(ctx, "X", at(25))
	require.NoError(t, err)
	assert.Equal(t, "X", got.ObjectID)
	assert.True(t, got.CreationTime.Equal(at(20)), "got %s", got.CreationTime)
	assert.Equal(t, 2.0, *got.Latitude)

	got, err = s.LastKnown(ctx, "X", at(30))
	require.NoError(t, err)
	assert.True(t, got.CreationTime.Equal(at(30)), "inclusive upper bound")

	got, err = s.LastKnown(ctx, "X", at(1000))
	require.NoError(t, err)
	assert.True(t, got.CreationTime.Equal(at(30)))

	_, err = s.LastKnown(ctx, "X", at(9))
	assert.True(t, errors.Is(err, position.ErrNotFound), "before first record: %v", err)

	_, err = s.LastKnown(ctx, "nobody", at(1000))
	assert.True(t, errors.Is(err, position.ErrNotFound))
}

func testLastKnownNulls(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertBatch(ctx, []position.Record{
		complete("N", at(0), 5, 5),
		rec("N", at(1), position.Float(7), nil),
	})
	require.NoError(t, err)

	got, err := s.LastKnown(ctx, "N", at(2))
	require.NoError(t, err)
	assert.True(t, got.CreationTime.Equal(at(1)))
	require.NotNil(t, got.Latitude)
	assert.Equal(t, 7.0, *got.Latitude)
	assert.Nil(t, got.Longitude)
}

func testNearest(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertBatch(ctx, []position.Record{
		complete("A", at(0), 0, 0),
		complete("B", at(0), 1, 1),
	})
	require.NoError(t, err)

	m, err := s.Nearest(ctx, at(0), orb.Point{0, 0})
	require.NoError(t, err)
	assert.Equal(t, "A", m.Record.ObjectID)
	assert.InDelta(t, 0, m.DistanceMeters, 1)

	m, err = s.Nearest(ctx, at(0), orb.Point{1, 1})
	require.NoError(t, err)
	assert.Equal(t, "B", m.Record.ObjectID)

	m, err = s.Nearest(ctx, at(0), orb.Point{0.9, 0.8})
	require.NoError(t, err)
	assert.Equal(t, "B", m.Record.ObjectID)
	assert.InDelta(t, store.Distance(orb.Point{0.9, 0.8}, orb.Point{1, 1}), m.DistanceMeters, 50)
}

func testNearestExact(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertBatch(ctx, []position.Record{
		complete("A", at(0), 0, 0),
		complete("B", at(1), 0, 0.001),
	})
	require.NoError(t, err)

	m, err := s.Nearest(ctx, at(1), orb.Point{0, 0})
	require.NoError(t, err)
	assert.Equal(t, "B", m.Record.ObjectID)

	_, err = s.Nearest(ctx, at(2), orb.Point{0, 0})
	assert.True(t, errors.Is(err, position.ErrNotFound))
}

func testNearestIncomplete(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertBatch(ctx, []position.Record{
		rec("A", at(0), position.Float(0), nil),
		rec("B", at(0), nil, nil),
	})
	require.NoError(t, err)

	_, err = s.Nearest(ctx, at(0), orb.Point{0, 0})
	assert.True(t, errors.Is(err, position.ErrNotFound))

	_, err = s.InsertBatch(ctx, []position.Record{complete("C", at(0), 60, 60)})
	require.NoError(t, err)
	m, err := s.Nearest(ctx, at(0), orb.Point{0, 0})
	require.NoError(t, err)
	assert.Equal(t, "C", m.Record.ObjectID)
}

func testNearestTie(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertBatch(ctx, []position.Record{
		complete("zeta", at(0), 10, 20),
		complete("alpha", at(0), 10, 20),
		complete("mid", at(0), -40, 100),
	})
	require.NoError(t, err)

	m, err := s.Nearest(ctx, at(0), orb.Point{20, 10})
	require.NoError(t, err)
	assert.Equal(t, "alpha", m.Record.ObjectID)
}

func testNearestAntimeridian(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertBatch(ctx, []position.Record{
		complete("east", at(0), 0, 179.9),
		complete("far", at(0), 0, 170),
	})
	require.NoError(t, err)

	m, err := s.Nearest(ctx, at(0), orb.Point{-179.9, 0})
	require.NoError(t, err)
	assert.Equal(t, "east", m.Record.ObjectID)
}

func testLargeBatch(t *testing.T, s store.Store) {
	ctx := context.Background()
	recs := make([]position.Record, 0, 1200)
	for i := 0; i < 1200; i++ {
		lat := float64(i%180) - 89.5
		lon := float64((i*7)%360) - 179.5
		recs = append(recs, complete(fmt.Sprintf("SAT-%04d", i), at(i%3), lat, lon))
	}
	res, err := s.InsertBatch(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 1200, res.Inserted)

	// 坐标每 360 条重复一次，取同坐标组里编号最小的一条
	target := recs[241]
	pt, _ := target.Location()
	m, err := s.Nearest(ctx, target.CreationTime, pt)
	require.NoError(t, err)
	assert.Equal(t, target.ObjectID, m.Record.ObjectID)
}
