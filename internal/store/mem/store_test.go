package mem

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starlink-api/internal/position"
	"starlink-api/internal/store"
	"starlink-api/internal/store/storetest"
)

func TestMemStore_Suite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestKDTree_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pts := make([]orb.Point, 2000)
	es := make([]entry, len(pts))
	for i := range pts {
		pts[i] = orb.Point{rng.Float64()*360 - 180, rng.Float64()*180 - 90}
		es[i] = entry{idx: i, id: fmt.Sprintf("S%05d", i), v: toUnit(pts[i])}
	}
	root := buildKD(es, 0)

	for k := 0; k < 300; k++ {
		q := orb.Point{rng.Float64()*360 - 180, rng.Float64()*180 - 90}
		got, ok := nearest(root, q)
		require.True(t, ok)

		best := -1
		for i, p := range pts {
			if best < 0 || store.Distance(q, p) < store.Distance(q, pts[best]) {
				best = i
			}
		}
		assert.Equal(t, best, got.idx, "query %v", q)
	}
}

func TestKDTree_PolarQueries(t *testing.T) {
	// 高纬度经度跨度大但实际距离很近，二维经纬剪枝会在这里出错
	es := []entry{
		{idx: 0, id: "a", v: toUnit(orb.Point{-170, 89.5})},
		{idx: 1, id: "b", v: toUnit(orb.Point{0, 80})},
		{idx: 2, id: "c", v: toUnit(orb.Point{10, 89})},
	}
	root := buildKD(es, 0)
	got, ok := nearest(root, orb.Point{10, 89.9})
	require.True(t, ok)
	assert.Equal(t, "a", got.id)
}

func TestNearest_EmptyTree(t *testing.T) {
	_, ok := nearest(nil, orb.Point{0, 0})
	assert.False(t, ok)
}

func TestMemStore_InsertAfterQueryRebuildsTree(t *testing.T) {
	s := New()
	ctx := context.Background()
	ts := time.Date(2022, 2, 2, 0, 0, 0, 0, time.UTC)

	_, err := s.InsertBatch(ctx, []position.Record{{ObjectID: "far", CreationTime: ts, Latitude: position.Float(50), Longitude: position.Float(50)}})
	require.NoError(t, err)
	m, err := s.Nearest(ctx, ts, orb.Point{0, 0})
	require.NoError(t, err)
	assert.Equal(t, "far", m.Record.ObjectID)

	_, err = s.InsertBatch(ctx, []position.Record{{ObjectID: "near", CreationTime: ts, Latitude: position.Float(1), Longitude: position.Float(1)}})
	require.NoError(t, err)
	m, err = s.Nearest(ctx, ts, orb.Point{0, 0})
	require.NoError(t, err)
	assert.Equal(t, "near", m.Record.ObjectID)
	assert.Equal(t, 2, s.Len())
}

func TestMemStore_ConcurrentReadersAndWriter(t *testing.T) {
	s := New()
	ctx := context.Background()
	ts := time.Date(2022, 2, 2, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			r := position.Record{ObjectID: fmt.Sprintf("W%03d", i), CreationTime: ts, Latitude: position.Float(float64(i % 90)), Longitude: position.Float(float64(i % 180))}
			_, err := s.InsertBatch(ctx, []position.Record{r})
			assert.NoError(t, err)
		}
	}()
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, _ = s.Nearest(ctx, ts, orb.Point{10, 10})
				_, _ = s.LastKnown(ctx, "W010", ts)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, s.Len())
}

func TestMemStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().InsertBatch(ctx, []position.Record{{ObjectID: "A", CreationTime: time.Now()}})
	assert.ErrorIs(t, err, context.Canceled)
}
