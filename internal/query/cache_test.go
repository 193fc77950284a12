package query

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starlink-api/internal/position"
	"starlink-api/internal/store"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })
	return NewCache(rc, time.Minute), mr
}

// countingReader：记录存储读取次数，用于区分缓存命中
type countingReader struct {
	store.Reader
	calls int
}

func (r *countingReader) LastKnown(ctx context.Context, id string, at time.Time) (position.Record, error) {
	r.calls++
	return r.Reader.LastKnown(ctx, id, at)
}

func (r *countingReader) Nearest(ctx context.Context, at time.Time, pt orb.Point) (store.Match, error) {
	r.calls++
	return r.Reader.Nearest(ctx, at, pt)
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	_, key, ok := c.Get(context.Background(), "lk", "X")
	assert.False(t, ok)
	assert.Empty(t, key)
	c.Set(context.Background(), "pos:0:lk:X", store.Match{})
	assert.NoError(t, c.Invalidate(context.Background()))

	c = NewCache(nil, 0)
	_, _, ok = c.Get(context.Background(), "lk", "X")
	assert.False(t, ok)
	assert.Equal(t, time.Hour, c.ttl)
}

func TestEntryRoundTrip(t *testing.T) {
	m := store.Match{
		Record: position.Record{
			ObjectID:     "2019-029D",
			CreationTime: time.Date(2020, 5, 24, 16, 25, 6, 0, time.UTC),
			Latitude:     position.Float(12.5),
		},
		DistanceMeters: 1234.5,
	}
	got, err := toEntry(m).match()
	require.NoError(t, err)
	assert.Equal(t, m.Record.ObjectID, got.Record.ObjectID)
	assert.True(t, m.Record.CreationTime.Equal(got.Record.CreationTime))
	assert.Equal(t, 12.5, *got.Record.Latitude)
	assert.Nil(t, got.Record.Longitude)
	assert.Equal(t, 1234.5, got.DistanceMeters)
}

func TestCache_MissThenHit(t *testing.T) {
	c, mr := newTestCache(t)
	r := &countingReader{Reader: seeded(t)}
	e := New(r, c)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rec, err := e.LastKnownLocation(ctx, "X", "2021-01-26T06:30:00")
		require.NoError(t, err)
		assert.Equal(t, 2.0, *rec.Latitude)

		m, err := e.ClosestSatellite(ctx, "2021-01-26T06:10:00", 38, -75)
		require.NoError(t, err)
		assert.Equal(t, "Y", m.Record.ObjectID)
		assert.Greater(t, m.DistanceMeters, 0.0)
	}
	assert.Equal(t, 2, r.calls, "second round served from cache")
	assert.True(t, mr.Exists("pos:0:lk:X:2021-01-26T06:30:00"))
	assert.True(t, mr.Exists("pos:0:cs:2021-01-26T06:10:00:38:-75"))
	assert.Equal(t, time.Minute, mr.TTL("pos:0:lk:X:2021-01-26T06:30:00"))
}

func TestCache_NotFoundIsNotCached(t *testing.T) {
	c, mr := newTestCache(t)
	r := &countingReader{Reader: seeded(t)}
	e := New(r, c)

	for i := 0; i < 2; i++ {
		_, err := e.LastKnownLocation(context.Background(), "X", "2021-01-26T05:00:00")
		assert.ErrorIs(t, err, position.ErrNotFound)
	}
	assert.Equal(t, 2, r.calls)
	assert.Empty(t, mr.Keys())
}

func TestCache_InvalidateHidesStaleAnswers(t *testing.T) {
	c, mr := newTestCache(t)
	s := seeded(t)
	e := New(s, c)
	ctx := context.Background()

	rec, err := e.LastKnownLocation(ctx, "X", "2021-01-26T06:30:00")
	require.NoError(t, err)
	assert.Equal(t, 2.0, *rec.Latitude)

	_, err = s.InsertBatch(ctx, []position.Record{{ObjectID: "X", CreationTime: time.Date(2021, 1, 26, 6, 20, 0, 0, time.UTC), Latitude: position.Float(3), Longitude: position.Float(3)}})
	require.NoError(t, err)
	require.NoError(t, e.Invalidate(ctx))
	mr.CheckGet(t, genKey, "1")

	rec, err = e.LastKnownLocation(ctx, "X", "2021-01-26T06:30:00")
	require.NoError(t, err)
	assert.Equal(t, 3.0, *rec.Latitude)
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	r := &countingReader{Reader: seeded(t)}
	e := New(r, c)
	ctx := context.Background()

	require.NoError(t, mr.Set("pos:0:lk:X:2021-01-26T06:30:00", "{not json"))
	rec, err := e.LastKnownLocation(ctx, "X", "2021-01-26T06:30:00")
	require.NoError(t, err)
	assert.Equal(t, 2.0, *rec.Latitude)
	assert.Equal(t, 1, r.calls)

	require.NoError(t, mr.Set("pos:0:lk:X:2021-01-26T06:40:00", `{"object_id":"X","creation_date":"bad"}`))
	_, err = e.LastKnownLocation(ctx, "X", "2021-01-26T06:40:00")
	require.NoError(t, err)
	assert.Equal(t, 2, r.calls)
}

func TestCache_RedisDownFallsBackToStore(t *testing.T) {
	c, mr := newTestCache(t)
	r := &countingReader{Reader: seeded(t)}
	e := New(r, c)

	mr.SetError("LOADING")
	rec, err := e.LastKnownLocation(context.Background(), "X", "2021-01-26T06:30:00")
	require.NoError(t, err)
	assert.Equal(t, 2.0, *rec.Latitude)
	assert.Error(t, e.Invalidate(context.Background()))
}

// racingReader：首次读取返回写入前的结果，并在返回前完成一次写入与失效
type racingReader struct {
	store.Reader
	write func()
	done  bool
}

func (r *racingReader) LastKnown(ctx context.Context, id string, at time.Time) (position.Record, error) {
	rec, err := r.Reader.LastKnown(ctx, id, at)
	if !r.done {
		r.done = true
		r.write()
	}
	return rec, err
}

func TestCache_WriteRacingInvalidateIsNotServed(t *testing.T) {
	c, _ := newTestCache(t)
	s := seeded(t)
	ctx := context.Background()
	var e *Engine
	r := &racingReader{Reader: s, write: func() {
		_, err := s.InsertBatch(ctx, []position.Record{{ObjectID: "X", CreationTime: time.Date(2021, 1, 26, 6, 20, 0, 0, time.UTC), Latitude: position.Float(3), Longitude: position.Float(3)}})
		require.NoError(t, err)
		require.NoError(t, e.Invalidate(ctx))
	}}
	e = New(r, c)

	rec, err := e.LastKnownLocation(ctx, "X", "2021-01-26T06:30:00")
	require.NoError(t, err)
	assert.Equal(t, 2.0, *rec.Latitude, "read started before the write")

	rec, err = e.LastKnownLocation(ctx, "X", "2021-01-26T06:30:00")
	require.NoError(t, err)
	assert.Equal(t, 3.0, *rec.Latitude)
}
