// 包 backend：按配置选择存储引擎，服务与导入工具共用
package backend

import (
	"context"
	"fmt"

	"starlink-api/internal/config"
	"starlink-api/internal/store"
	"starlink-api/internal/store/mem"
	"starlink-api/internal/store/pg"
	"starlink-api/internal/store/sqlite"
)

func Open(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Backend {
	case "postgres", "":
		return pg.Open(ctx, cfg.DB)
	case "sqlite":
		return sqlite.Open(ctx, cfg.SQLitePath)
	case "memory":
		return mem.New(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
