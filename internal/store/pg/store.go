// 包 pg：PostgreSQL + PostGIS 位置存储
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"starlink-api/internal/config"
	"starlink-api/internal/logger"
	"starlink-api/internal/migrate"
	"starlink-api/internal/position"
	"starlink-api/internal/store"
	"starlink-api/internal/utils"
)

// 单条 INSERT 的最大行数；每行 6 个参数，远低于协议的 65535 上限
const maxRowsPerStatement = 5000

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open：校验连接描述、打开连接池并确保表结构
// 异常：描述不完整时返回 *config.ConfigurationError，不尝试连接
func Open(ctx context.Context, d config.DB) (*Store, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	db, err := utils.OpenPostgres(d.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres %s:%s: %w", d.Host, d.Port, err)
	}
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	logger.L().Info("postgres_open", "host", d.Host, "db", d.Name)
	return &Store{db: db}, nil
}

// New：基于已有连接构造（表结构由调用方负责）
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// InsertBatch：一个事务内按块执行多行 INSERT ... ON CONFLICT DO NOTHING RETURNING，
// 以返回行数作为实际插入数；批内重复在发送前剔除并计为重复
func (s *Store) InsertBatch(ctx context.Context, recs []position.Record) (store.InsertResult, error) {
	var res store.InsertResult
	if len(recs) == 0 {
		return res, nil
	}
	uniq, dup := dedupe(recs)
	res.Duplicates = dup

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.InsertResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for start := 0; start < len(uniq); start += maxRowsPerStatement {
		end := start + maxRowsPerStatement
		if end > len(uniq) {
			end = len(uniq)
		}
		q, args := buildInsert(uniq[start:end])
		n, err := countReturned(ctx, tx, q, args)
		if err != nil {
			return store.InsertResult{}, err
		}
		res.Inserted += n
		res.Duplicates += (end - start) - n
	}
	if err := tx.Commit(); err != nil {
		return store.InsertResult{}, fmt.Errorf("commit: %w", err)
	}
	logger.L().Debug("pg_insert_batch", "inserted", res.Inserted, "duplicates", res.Duplicates)
	return res, nil
}

func countReturned(ctx context.Context, tx *sql.Tx, q string, args []any) (int, error) {
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

// dedupe：按主键保留首次出现的记录，时间统一截断到秒
func dedupe(recs []position.Record) ([]position.Record, int) {
	seen := make(map[string]struct{}, len(recs))
	out := make([]position.Record, 0, len(recs))
	for _, r := range recs {
		r.CreationTime = store.Truncate(r.CreationTime)
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, len(recs) - len(out)
}

const insertColumns = 6

// buildInsert：生成多行插入语句与参数
func buildInsert(recs []position.Record) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO satellite_locations (object_id, creation_date, location, latitude, longitude, is_lat_long_complete) VALUES `)
	args := make([]any, 0, len(recs)*insertColumns)
	for i, r := range recs {
		if i > 0 {
			b.WriteString(", ")
		}
		p := i*insertColumns + 1
		b.WriteString("($" + strconv.Itoa(p) +
			", $" + strconv.Itoa(p+1) +
			", $" + strconv.Itoa(p+2) + "::geography" +
			", $" + strconv.Itoa(p+3) +
			", $" + strconv.Itoa(p+4) +
			", $" + strconv.Itoa(p+5) + ")")
		args = append(args, r.ObjectID, r.CreationTime.UTC(), ewkt(r), nullable(r.Latitude), nullable(r.Longitude), r.HasCompleteCoordinates())
	}
	b.WriteString(` ON CONFLICT (object_id, creation_date) DO NOTHING RETURNING object_id`)
	return b.String(), args
}

// ewkt：坐标齐全时返回 SRID=4326 的 EWKT，否则 NULL
func ewkt(r position.Record) sql.NullString {
	pt, ok := r.Location()
	if !ok {
		return sql.NullString{}
	}
	return sql.NullString{String: "SRID=4326;" + wkt.MarshalString(pt), Valid: true}
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func scan(sc interface{ Scan(...any) error }) (position.Record, error) {
	var (
		r        position.Record
		lat, lon sql.NullFloat64
	)
	if err := sc.Scan(&r.ObjectID, &r.CreationTime, &lat, &lon); err != nil {
		return position.Record{}, err
	}
	r.CreationTime = r.CreationTime.UTC()
	if lat.Valid {
		r.Latitude = position.Float(lat.Float64)
	}
	if lon.Valid {
		r.Longitude = position.Float(lon.Float64)
	}
	return r, nil
}

const lastKnownSQL = `SELECT object_id, creation_date, latitude, longitude
    FROM satellite_locations
    WHERE object_id = $1 AND creation_date <= $2
    ORDER BY creation_date DESC
    LIMIT 1`

func (s *Store) LastKnown(ctx context.Context, objectID string, at time.Time) (position.Record, error) {
	r, err := scan(s.db.QueryRowContext(ctx, lastKnownSQL, objectID, store.Truncate(at)))
	if errors.Is(err, sql.ErrNoRows) {
		return position.Record{}, fmt.Errorf("last known %s at %s: %w", objectID, position.FormatTimestamp(at), position.ErrNotFound)
	}
	if err != nil {
		return position.Record{}, fmt.Errorf("last known %s: %w", objectID, err)
	}
	return r, nil
}

// 距离在 geography 上计算（WGS84 椭球），排序后按 object_id 决胜
const nearestSQL = `SELECT object_id, creation_date, latitude, longitude
    FROM satellite_locations
    WHERE creation_date = $1 AND is_lat_long_complete
    ORDER BY ST_Distance(location, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography), object_id
    LIMIT 1`

func (s *Store) Nearest(ctx context.Context, at time.Time, pt orb.Point) (store.Match, error) {
	r, err := scan(s.db.QueryRowContext(ctx, nearestSQL, store.Truncate(at), pt.Lon(), pt.Lat()))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Match{}, fmt.Errorf("nearest at %s: %w", position.FormatTimestamp(at), position.ErrNotFound)
	}
	if err != nil {
		return store.Match{}, fmt.Errorf("nearest: %w", err)
	}
	loc, _ := r.Location()
	return store.Match{Record: r, DistanceMeters: store.Distance(pt, loc)}, nil
}
