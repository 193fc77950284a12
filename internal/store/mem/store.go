// 包 mem：进程内位置存储，用于测试与小规模部署
package mem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"starlink-api/internal/logger"
	"starlink-api/internal/position"
	"starlink-api/internal/store"
)

// Store：按对象维护时间升序切片（回溯查询），按时间戳维护坐标齐全记录的桶与惰性构建的 KD-Tree（最近邻）
// 约束：仅插入；读写由 RWMutex 保护，查询可与写入并发
type Store struct {
	mu      sync.RWMutex
	keys    map[string]struct{}
	byObj   map[string][]position.Record
	buckets map[int64]*bucket
}

type bucket struct {
	recs []position.Record
	tree *kdNode // 写入后置空，下次查询时重建
}

func New() *Store {
	return &Store{
		keys:    make(map[string]struct{}),
		byObj:   make(map[string][]position.Record),
		buckets: make(map[int64]*bucket),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Close() error { return nil }

// Len：已存储的行数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func (s *Store) InsertBatch(ctx context.Context, recs []position.Record) (store.InsertResult, error) {
	var res store.InsertResult
	if len(recs) == 0 {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := make(map[string]bool)
	for _, r := range recs {
		r.CreationTime = store.Truncate(r.CreationTime)
		k := r.Key()
		if _, ok := s.keys[k]; ok {
			res.Duplicates++
			continue
		}
		s.keys[k] = struct{}{}
		s.byObj[r.ObjectID] = append(s.byObj[r.ObjectID], r)
		touched[r.ObjectID] = true
		if r.HasCompleteCoordinates() {
			ts := r.CreationTime.Unix()
			b := s.buckets[ts]
			if b == nil {
				b = &bucket{}
				s.buckets[ts] = b
			}
			b.recs = append(b.recs, r)
			b.tree = nil
		}
		res.Inserted++
	}
	for id := range touched {
		rs := s.byObj[id]
		sort.Slice(rs, func(i, j int) bool { return rs[i].CreationTime.Before(rs[j].CreationTime) })
	}
	logger.L().Debug("mem_insert_batch", "inserted", res.Inserted, "duplicates", res.Duplicates)
	return res, nil
}

func (s *Store) LastKnown(ctx context.Context, objectID string, at time.Time) (position.Record, error) {
	at = store.Truncate(at)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs := s.byObj[objectID]
	// 第一个晚于 at 的下标，前一个即为答案
	i := sort.Search(len(rs), func(i int) bool { return rs[i].CreationTime.After(at) })
	if i == 0 {
		return position.Record{}, fmt.Errorf("last known %s at %s: %w", objectID, position.FormatTimestamp(at), position.ErrNotFound)
	}
	return rs[i-1], nil
}

func (s *Store) Nearest(ctx context.Context, at time.Time, pt orb.Point) (store.Match, error) {
	ts := store.Truncate(at).Unix()
	s.mu.RLock()
	b := s.buckets[ts]
	if b == nil || len(b.recs) == 0 {
		s.mu.RUnlock()
		return store.Match{}, fmt.Errorf("nearest at %s: %w", position.FormatTimestamp(at), position.ErrNotFound)
	}
	tree := b.tree
	recs := b.recs
	s.mu.RUnlock()

	if tree == nil {
		tree = s.rebuild(ts)
		s.mu.RLock()
		recs = s.buckets[ts].recs
		s.mu.RUnlock()
	}
	e, ok := nearest(tree, pt)
	if !ok || e.idx >= len(recs) {
		return store.Match{}, fmt.Errorf("nearest at %s: %w", position.FormatTimestamp(at), position.ErrNotFound)
	}
	r := recs[e.idx]
	loc, _ := r.Location()
	return store.Match{Record: r, DistanceMeters: store.Distance(pt, loc)}, nil
}

// rebuild：在写锁下为时间桶重建 KD-Tree；并发查询只会有一个实际构建
func (s *Store) rebuild(ts int64) *kdNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buckets[ts]
	if b.tree != nil {
		return b.tree
	}
	es := make([]entry, len(b.recs))
	for i, r := range b.recs {
		loc, _ := r.Location()
		es[i] = entry{idx: i, id: r.ObjectID, v: toUnit(loc)}
	}
	b.tree = buildKD(es, 0)
	logger.L().Debug("mem_kdtree_built", "ts", ts, "size", len(es))
	return b.tree
}
