// 包 store：位置历史的存储契约；具体引擎见 pg（PostgreSQL+PostGIS）、sqlite（嵌入式）、mem（进程内）
package store

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"starlink-api/internal/position"
)

// InsertResult：单批写入的实际插入数与因主键已存在而跳过的数量
type InsertResult struct {
	Inserted   int
	Duplicates int
}

func (r InsertResult) Add(o InsertResult) InsertResult {
	return InsertResult{Inserted: r.Inserted + o.Inserted, Duplicates: r.Duplicates + o.Duplicates}
}

// Match：最近邻查询命中，附带到查询点的距离（米）
type Match struct {
	Record         position.Record
	DistanceMeters float64
}

// Writer：仅插入的写接口
// 约束：主键 (object_id, creation_time) 已存在时静默跳过，不更新、不报错；空批次为无操作
type Writer interface {
	InsertBatch(ctx context.Context, recs []position.Record) (InsertResult, error)
}

// Reader：两类查询
// LastKnown：object_id 相同且 creation_time <= at 的最新一行
// Nearest：creation_time == at 且坐标齐全的行中距离 pt 最近者；等距时取 object_id 字典序最小者
// 未命中均返回包裹 position.ErrNotFound 的错误
type Reader interface {
	LastKnown(ctx context.Context, objectID string, at time.Time) (position.Record, error)
	Nearest(ctx context.Context, at time.Time, pt orb.Point) (Match, error)
}

type Store interface {
	Writer
	Reader
	Close() error
}

// Distance：各引擎统一的距离口径（球面 haversine，米）
func Distance(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// Closer：最近邻比较规则，距离优先，其次 object_id 字典序
func Closer(d1 float64, id1 string, d2 float64, id2 string) bool {
	if d1 != d2 {
		return d1 < d2
	}
	return id1 < id2
}

// Truncate：统一到秒精度与 UTC，保证各引擎主键口径一致
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
