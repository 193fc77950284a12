package utils

import (
	"database/sql"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

// OpenPostgres：打开 PostgreSQL 连接池；PG_MAX_OPEN_CONNS/PG_MAX_IDLE_CONNS 可覆盖默认 50/25
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(envPositive("PG_MAX_OPEN_CONNS", 50))
	db.SetMaxIdleConns(envPositive("PG_MAX_IDLE_CONNS", 25))
	return db, nil
}

func envPositive(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
