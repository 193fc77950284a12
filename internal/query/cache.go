package query

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"starlink-api/internal/logger"
	"starlink-api/internal/metrics"
	"starlink-api/internal/position"
	"starlink-api/internal/store"
)

const genKey = "pos:gen"

// Cache：Redis 读穿缓存，键带写入代数
// 背景：导入新增行后递增代数，旧代数下的条目不再被读取并随 TTL 过期，因此缓存结果不会比存储旧
// 约束：nil 或未配置客户端时全部操作为空操作；Redis 故障降级为直接查询
type Cache struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewCache(rc *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{rc: rc, ttl: ttl}
}

func (c *Cache) enabled() bool { return c != nil && c.rc != nil }

// entry：缓存的查询结果
type entry struct {
	ObjectID     string   `json:"object_id"`
	CreationDate string   `json:"creation_date"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Distance     float64  `json:"distance_m,omitempty"`
}

func toEntry(m store.Match) entry {
	return entry{
		ObjectID:     m.Record.ObjectID,
		CreationDate: position.FormatTimestamp(m.Record.CreationTime),
		Latitude:     m.Record.Latitude,
		Longitude:    m.Record.Longitude,
		Distance:     m.DistanceMeters,
	}
}

func (e entry) match() (store.Match, error) {
	ts, err := position.ParseTimestamp(e.CreationDate)
	if err != nil {
		return store.Match{}, err
	}
	return store.Match{
		Record:         position.Record{ObjectID: e.ObjectID, CreationTime: ts, Latitude: e.Latitude, Longitude: e.Longitude},
		DistanceMeters: e.Distance,
	}, nil
}

func (c *Cache) generation(ctx context.Context) (string, error) {
	g, err := c.rc.Get(ctx, genKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return g, err
}

func (c *Cache) key(ctx context.Context, parts ...string) (string, error) {
	g, err := c.generation(ctx)
	if err != nil {
		return "", err
	}
	k := "pos:" + g
	for _, p := range parts {
		k += ":" + p
	}
	return k, nil
}

// Get：命中返回 ok=true；任何 Redis 错误按未命中处理
// 约束：返回的 key 绑定读取时的代数，未命中时调用方应以该 key 调用 Set；
// 查询期间发生的失效会递增代数，过期结果只会写入不再被读取的旧代数
func (c *Cache) Get(ctx context.Context, parts ...string) (m store.Match, key string, ok bool) {
	if !c.enabled() {
		return store.Match{}, "", false
	}
	key, err := c.key(ctx, parts...)
	if err != nil {
		logger.L().Debug("cache_error", "op", "gen", "err", err)
		return store.Match{}, "", false
	}
	s, err := c.rc.Get(ctx, key).Result()
	if err != nil || s == "" {
		metrics.CacheMissesTotal.Inc()
		return store.Match{}, key, false
	}
	var e entry
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		metrics.CacheMissesTotal.Inc()
		return store.Match{}, key, false
	}
	m, err = e.match()
	if err != nil {
		metrics.CacheMissesTotal.Inc()
		return store.Match{}, key, false
	}
	metrics.CacheHitsTotal.Inc()
	return m, key, true
}

// Set：写入 Get 返回的 key；key 为空（缓存不可用）时忽略
func (c *Cache) Set(ctx context.Context, key string, m store.Match) {
	if !c.enabled() || key == "" {
		return
	}
	b, _ := json.Marshal(toEntry(m))
	if err := c.rc.Set(ctx, key, string(b), c.ttl).Err(); err != nil {
		logger.L().Debug("cache_error", "op", "set", "err", err)
	}
}

// Invalidate：递增写入代数，供导入器在新增行后调用
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	g, err := c.rc.Incr(ctx, genKey).Result()
	if err != nil {
		return err
	}
	logger.L().Debug("cache_invalidate", "generation", g)
	return nil
}

func coordKey(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
