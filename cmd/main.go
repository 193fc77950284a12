// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"starlink-api/internal/api"
	"starlink-api/internal/config"
	"starlink-api/internal/geoip"
	"starlink-api/internal/ingest"
	"starlink-api/internal/logger"
	"starlink-api/internal/middleware"
	"starlink-api/internal/query"
	"starlink-api/internal/store/backend"
	"starlink-api/internal/utils"
	"starlink-api/internal/version"
)

func main() {
	l := logger.Setup()
	l.Debug("log_init_ok")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	l.Info("config_loaded", "backend", cfg.Backend, "api_base", cfg.APIBase, "commit", version.Commit)

	st, err := backend.Open(ctx, cfg)
	if err != nil {
		l.Error("store_open_error", "backend", cfg.Backend, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else if err := rc.Ping(ctx).Err(); err != nil {
		// 缓存不可用时降级为直接查询
		l.Error("redis_ping_error", "err", err)
		rc = nil
	} else {
		l.Info("redis_ping_ok")
		defer rc.Close()
	}
	engine := query.New(st, query.NewCache(rc, cfg.QueryCacheTTL))

	var loc api.Locator
	if cfg.GeoIPPath != "" {
		if g, err := geoip.Open(cfg.GeoIPPath); err == nil {
			defer g.Close()
			loc = g
		} else {
			l.Error("geoip_open_error", "err", err)
		}
	}

	opts := ingest.Options{BatchSize: cfg.BatchSize, SkipInvalid: cfg.SkipInvalid}
	if cfg.IngestFile != "" {
		// 启动时先导入一次，之后按 INGEST_INTERVAL 周期重放
		go func() {
			if _, err := ingest.IngestFile(ctx, cfg.IngestFile, st, opts, engine); err != nil {
				l.Error("ingest_error", "path", cfg.IngestFile, "err", err)
			}
		}()
		ingest.StartEvery(ctx, cfg.IngestInterval, func(ctx context.Context) (ingest.Stats, error) {
			return ingest.IngestFile(ctx, cfg.IngestFile, st, opts, engine)
		})
	}

	routes := api.BuildRoutes(cfg.APIBase, api.Deps{
		Engine:     engine,
		Writer:     st,
		Locator:    loc,
		AdminToken: cfg.AdminToken,
		Ingest:     opts,
		Backend:    cfg.Backend,
		Ctx:        ctx,
	})
	handler := logger.AccessMiddleware(l)(routes)
	handler = middleware.Wrap(handler)
	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.Info("shutdown")
		_ = s.Shutdown(sctx)
	}()

	if cfg.TLSEnable {
		if err := utils.EnsureSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, "starlink-api.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertPath)
		err = s.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
}
