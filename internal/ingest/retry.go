package ingest

import (
	"context"
	"fmt"
	"time"

	"starlink-api/internal/logger"
	"starlink-api/internal/metrics"
	"starlink-api/internal/position"
	"starlink-api/internal/store"
)

// retryWriter：为批次写入加超时与指数退避重试
// 约束：写入幂等，重试不会产生重复行；上下文取消立即返回
type retryWriter struct {
	inner      store.Writer
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
}

func (rw *retryWriter) InsertBatch(ctx context.Context, recs []position.Record) (store.InsertResult, error) {
	var lastErr error
	for attempt := 0; attempt <= rw.maxRetries; attempt++ {
		res, err := rw.attempt(ctx, recs)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return store.InsertResult{}, ctx.Err()
		}
		if attempt == rw.maxRetries {
			break
		}
		delay := rw.baseDelay * time.Duration(1<<uint(attempt))
		metrics.IngestWriteRetriesTotal.Inc()
		logger.L().Warn("ingest_write_retry", "attempt", attempt+1, "max", rw.maxRetries+1, "delay", delay, "err", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return store.InsertResult{}, ctx.Err()
		}
	}
	return store.InsertResult{}, fmt.Errorf("write failed after %d attempts: %w", rw.maxRetries+1, lastErr)
}

func (rw *retryWriter) attempt(ctx context.Context, recs []position.Record) (store.InsertResult, error) {
	if rw.timeout <= 0 {
		return rw.inner.InsertBatch(ctx, recs)
	}
	c, cancel := context.WithTimeout(ctx, rw.timeout)
	defer cancel()
	return rw.inner.InsertBatch(c, recs)
}
