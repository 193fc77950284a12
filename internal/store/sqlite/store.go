// 包 sqlite：嵌入式单文件位置存储（sqlx + modernc.org/sqlite，无需 CGO）
// 约束：无空间索引；最近邻按 creation_time 索引取出同一秒的全部行后线性扫描
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/paulmach/orb"
	_ "modernc.org/sqlite"

	"starlink-api/internal/logger"
	"starlink-api/internal/migrate"
	"starlink-api/internal/position"
	"starlink-api/internal/store"
)

type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// row：表行映射；creation_time 为 UTC 秒级 Unix 时间
type row struct {
	ObjectID     string          `db:"object_id"`
	CreationTime int64           `db:"creation_time"`
	Latitude     sql.NullFloat64 `db:"latitude"`
	Longitude    sql.NullFloat64 `db:"longitude"`
}

func (r row) record() position.Record {
	rec := position.Record{ObjectID: r.ObjectID, CreationTime: time.Unix(r.CreationTime, 0).UTC()}
	if r.Latitude.Valid {
		rec.Latitude = position.Float(r.Latitude.Float64)
	}
	if r.Longitude.Valid {
		rec.Longitude = position.Float(r.Longitude.Float64)
	}
	return rec
}

// Open：打开（必要时创建）数据库文件并建表
// 约束：单写连接，避免 SQLITE_BUSY；path 为 ":memory:" 时同样适用
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if err := migrate.EnsureSQLiteSchema(ctx, db.DB); err != nil {
		db.Close()
		return nil, err
	}
	logger.L().Info("sqlite_open", "path", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const insertSQL = `INSERT INTO satellite_locations
    (object_id, creation_time, latitude, longitude, is_lat_long_complete)
    VALUES (?, ?, ?, ?, ?)
    ON CONFLICT (object_id, creation_time) DO NOTHING`

// InsertBatch：单事务逐行条件插入，按 RowsAffected 区分新增与重复
func (s *Store) InsertBatch(ctx context.Context, recs []position.Record) (store.InsertResult, error) {
	var res store.InsertResult
	if len(recs) == 0 {
		return res, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PreparexContext(ctx, insertSQL)
	if err != nil {
		return res, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range recs {
		out, err := stmt.ExecContext(ctx,
			r.ObjectID,
			store.Truncate(r.CreationTime).Unix(),
			nullable(r.Latitude),
			nullable(r.Longitude),
			r.HasCompleteCoordinates(),
		)
		if err != nil {
			return store.InsertResult{}, fmt.Errorf("insert %s: %w", r.Key(), err)
		}
		n, err := out.RowsAffected()
		if err != nil {
			return store.InsertResult{}, err
		}
		if n > 0 {
			res.Inserted++
		} else {
			res.Duplicates++
		}
	}
	if err := tx.Commit(); err != nil {
		return store.InsertResult{}, fmt.Errorf("commit: %w", err)
	}
	logger.L().Debug("sqlite_insert_batch", "inserted", res.Inserted, "duplicates", res.Duplicates)
	return res, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func (s *Store) LastKnown(ctx context.Context, objectID string, at time.Time) (position.Record, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT object_id, creation_time, latitude, longitude
        FROM satellite_locations
        WHERE object_id = ? AND creation_time <= ?
        ORDER BY creation_time DESC LIMIT 1`, objectID, store.Truncate(at).Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return position.Record{}, fmt.Errorf("last known %s at %s: %w", objectID, position.FormatTimestamp(at), position.ErrNotFound)
	}
	if err != nil {
		return position.Record{}, fmt.Errorf("last known %s: %w", objectID, err)
	}
	return r.record(), nil
}

// Nearest：按时间索引取出该秒的全部完整行，进程内按 haversine 排序
func (s *Store) Nearest(ctx context.Context, at time.Time, pt orb.Point) (store.Match, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `SELECT object_id, creation_time, latitude, longitude
        FROM satellite_locations
        WHERE creation_time = ? AND is_lat_long_complete = 1`, store.Truncate(at).Unix())
	if err != nil {
		return store.Match{}, fmt.Errorf("nearest: %w", err)
	}
	var best store.Match
	found := false
	for _, r := range rows {
		rec := r.record()
		loc, ok := rec.Location()
		if !ok {
			continue
		}
		d := store.Distance(pt, loc)
		if !found || store.Closer(d, rec.ObjectID, best.DistanceMeters, best.Record.ObjectID) {
			best = store.Match{Record: rec, DistanceMeters: d}
			found = true
		}
	}
	if !found {
		return store.Match{}, fmt.Errorf("nearest at %s: %w", position.FormatTimestamp(at), position.ErrNotFound)
	}
	return best, nil
}
