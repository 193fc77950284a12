package ingest

import (
	"context"
	"time"

	"starlink-api/internal/logger"
)

// StartEvery：后台协程按固定间隔重复执行导入
// 背景：导入幂等，周期性重放同一文件只会补入新增记录
// 约束：interval<=0 时不启动；错误仅记录，任务继续调度；ctx 取消后退出
func StartEvery(ctx context.Context, interval time.Duration, fn func(context.Context) (Stats, error)) {
	if interval <= 0 {
		return
	}
	l := logger.Named("scheduler")
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				l.Info("ingest_schedule_stop")
				return
			case <-t.C:
			}
			l.Info("ingest_schedule_run", "interval", interval)
			if st, err := fn(ctx); err != nil {
				l.Error("ingest_error", "run_id", st.RunID, "err", err)
			}
		}
	}()
}
