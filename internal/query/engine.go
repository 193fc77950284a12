// 包 query：两类位置查询，负责入参校验、缓存与指标，实际读取委托给存储
package query

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"

	"starlink-api/internal/metrics"
	"starlink-api/internal/position"
	"starlink-api/internal/store"
)

const (
	queryLastKnown = "last_known_location"
	queryClosest   = "closest_satellite"
)

// Engine：无状态查询入口，每次查询至多一次存储读取
type Engine struct {
	r     store.Reader
	cache *Cache
}

// New：cache 可为 nil
func New(r store.Reader, cache *Cache) *Engine {
	return &Engine{r: r, cache: cache}
}

// LastKnownLocation：object_id 在 timestamp（含）之前的最新位置
// 异常：object_id 为空返回 *ValidationError；时间戳格式错误返回 *InvalidTimestampFormatError；无记录返回 ErrNotFound
func (e *Engine) LastKnownLocation(ctx context.Context, objectID, timestamp string) (rec position.Record, err error) {
	defer observe(queryLastKnown, time.Now(), &err)
	if objectID == "" {
		return position.Record{}, &position.ValidationError{Field: "object_id", Reason: "is required"}
	}
	at, err := position.ParseTimestamp(timestamp)
	if err != nil {
		return position.Record{}, err
	}
	cached, key, ok := e.cache.Get(ctx, "lk", objectID, timestamp)
	if ok {
		return cached.Record, nil
	}
	rec, err = e.r.LastKnown(ctx, objectID, at)
	if err != nil {
		return position.Record{}, err
	}
	e.cache.Set(ctx, key, store.Match{Record: rec})
	return rec, nil
}

// ClosestSatellite：timestamp 时刻坐标齐全的记录中距 (lat, lon) 最近者
// 约束：时间戳精确匹配；等距时取 object_id 字典序最小者
func (e *Engine) ClosestSatellite(ctx context.Context, timestamp string, lat, lon float64) (m store.Match, err error) {
	defer observe(queryClosest, time.Now(), &err)
	at, err := position.ParseTimestamp(timestamp)
	if err != nil {
		return store.Match{}, err
	}
	if err := position.CheckCoordinates(lat, lon); err != nil {
		return store.Match{}, err
	}
	cached, key, ok := e.cache.Get(ctx, "cs", timestamp, coordKey(lat), coordKey(lon))
	if ok {
		return cached, nil
	}
	m, err = e.r.Nearest(ctx, at, orb.Point{lon, lat})
	if err != nil {
		return store.Match{}, err
	}
	e.cache.Set(ctx, key, m)
	return m, nil
}

// Invalidate：转发到缓存，使 Engine 可直接作为导入器的失效钩子
func (e *Engine) Invalidate(ctx context.Context) error {
	return e.cache.Invalidate(ctx)
}

func observe(query string, start time.Time, err *error) {
	metrics.QueryDurationMs.WithLabelValues(query).Observe(float64(time.Since(start).Milliseconds()))
	metrics.QueryRequestsTotal.WithLabelValues(query, Outcome(*err)).Inc()
}

// Outcome：错误分类，用于指标标签与请求层状态码映射
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, position.ErrNotFound):
		return "not_found"
	case position.IsClientError(err):
		return "invalid"
	default:
		return "error"
	}
}
