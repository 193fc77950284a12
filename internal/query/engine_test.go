package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starlink-api/internal/position"
	"starlink-api/internal/store/mem"
)

func seeded(t *testing.T) *mem.Store {
	t.Helper()
	s := mem.New()
	ts := func(m int) time.Time { return time.Date(2021, 1, 26, 6, m, 0, 0, time.UTC) }
	_, err := s.InsertBatch(context.Background(), []position.Record{
		{ObjectID: "X", CreationTime: ts(0), Latitude: position.Float(1), Longitude: position.Float(1)},
		{ObjectID: "X", CreationTime: ts(10), Latitude: position.Float(2), Longitude: position.Float(2)},
		{ObjectID: "Y", CreationTime: ts(10), Latitude: position.Float(40), Longitude: position.Float(-70)},
		{ObjectID: "Z", CreationTime: ts(10)},
	})
	require.NoError(t, err)
	return s
}

func TestLastKnownLocation(t *testing.T) {
	e := New(seeded(t), nil)
	ctx := context.Background()

	rec, err := e.LastKnownLocation(ctx, "X", "2021-01-26T06:05:00")
	require.NoError(t, err)
	assert.Equal(t, 1.0, *rec.Latitude)

	rec, err = e.LastKnownLocation(ctx, "X", "2021-01-26T06:10:00")
	require.NoError(t, err)
	assert.Equal(t, 2.0, *rec.Latitude)

	_, err = e.LastKnownLocation(ctx, "X", "2021-01-26T05:59:59")
	assert.True(t, errors.Is(err, position.ErrNotFound))
}

func TestLastKnownLocation_InvalidInput(t *testing.T) {
	e := New(seeded(t), nil)
	ctx := context.Background()

	_, err := e.LastKnownLocation(ctx, "", "2021-01-26T06:05:00")
	var ve *position.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "object_id", ve.Field)

	for _, ts := range []string{"2021-01-26 06:05:00", "01/26/2021", "2021-01-26T06:05:00Z", ""} {
		_, err = e.LastKnownLocation(ctx, "X", ts)
		var te *position.InvalidTimestampFormatError
		assert.True(t, errors.As(err, &te), "timestamp %q", ts)
	}
}

func TestClosestSatellite(t *testing.T) {
	e := New(seeded(t), nil)
	ctx := context.Background()

	m, err := e.ClosestSatellite(ctx, "2021-01-26T06:10:00", 38, -75)
	require.NoError(t, err)
	assert.Equal(t, "Y", m.Record.ObjectID)
	assert.Greater(t, m.DistanceMeters, 0.0)

	m, err = e.ClosestSatellite(ctx, "2021-01-26T06:10:00", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "X", m.Record.ObjectID)

	_, err = e.ClosestSatellite(ctx, "2021-01-26T06:10:01", 0, 0)
	assert.True(t, errors.Is(err, position.ErrNotFound), "no fuzzy time match")
}

func TestClosestSatellite_InvalidInput(t *testing.T) {
	e := New(seeded(t), nil)
	ctx := context.Background()

	_, err := e.ClosestSatellite(ctx, "2021-01-26T06:10:00", 90.5, 0)
	var ve *position.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "latitude", ve.Field)

	_, err = e.ClosestSatellite(ctx, "2021-01-26T06:10:00", 0, -180.01)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "longitude", ve.Field)

	_, err = e.ClosestSatellite(ctx, "2021-01-26T06:10:00", -90, 180)
	assert.NoError(t, err, "bounds are inclusive")
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "not_found", Outcome(position.ErrNotFound))
	assert.Equal(t, "invalid", Outcome(&position.InvalidTimestampFormatError{Value: "x"}))
	assert.Equal(t, "invalid", Outcome(&position.ValidationError{Field: "latitude"}))
	assert.Equal(t, "error", Outcome(errors.New("connection refused")))
}
