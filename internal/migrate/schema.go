// 包 migrate：首次运行自动创建位置表与索引
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"starlink-api/internal/logger"
)

// PostgresStatements：PostGIS 版本的建表语句
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；location 仅在坐标齐全时写入
var PostgresStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE TABLE IF NOT EXISTS satellite_locations (
        object_id VARCHAR(255) NOT NULL,
        creation_date TIMESTAMP NOT NULL,
        location geography(Point, 4326),
        latitude DOUBLE PRECISION,
        longitude DOUBLE PRECISION,
        is_lat_long_complete BOOLEAN NOT NULL DEFAULT FALSE,
        PRIMARY KEY (object_id, creation_date)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_satellite_locations_location
        ON satellite_locations USING GIST (location)
        WHERE is_lat_long_complete`,
	`CREATE INDEX IF NOT EXISTS idx_satellite_locations_creation_date
        ON satellite_locations (creation_date)`,
}

// SQLiteStatements：嵌入式引擎的建表语句；creation_time 为 UTC 秒级 Unix 时间
var SQLiteStatements = []string{
	`CREATE TABLE IF NOT EXISTS satellite_locations (
        object_id TEXT NOT NULL,
        creation_time INTEGER NOT NULL,
        latitude REAL,
        longitude REAL,
        is_lat_long_complete INTEGER NOT NULL DEFAULT 0,
        PRIMARY KEY (object_id, creation_time)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_satellite_locations_creation_time
        ON satellite_locations (creation_time, is_lat_long_complete)`,
}

// EnsureSchema：在 PostgreSQL 上执行建表
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db, "postgres", PostgresStatements)
}

// EnsureSQLiteSchema：在 SQLite 上执行建表
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	return exec(ctx, db, "sqlite", SQLiteStatements)
}

func exec(ctx context.Context, db *sql.DB, dialect string, stmts []string) error {
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "dialect", dialect, "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	logger.L().Debug("schema_done", "dialect", dialect)
	return nil
}
