// 包 ingest：原始位置流的校验、分批与幂等写入，作为离线数据通道
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"starlink-api/internal/config"
	"starlink-api/internal/logger"
	"starlink-api/internal/metrics"
	"starlink-api/internal/position"
	"starlink-api/internal/store"
)

// Options：导入参数；零值字段取默认（MaxRetries 为负表示不重试）
type Options struct {
	RunID        string // 为空时每次 Run 生成新的 uuid
	BatchSize    int
	SkipInvalid  bool
	WriteTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = config.DefaultBatchSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	return o
}

// Stats：一次导入的汇总
// Flushes 含末尾的空批次；Batches 只计非空批次（即实际写入次数）
type Stats struct {
	RunID      string
	Records    int
	Invalid    int
	Flushes    int
	Batches    int
	Inserted   int
	Duplicates int
}

// Invalidator：写入新行后通知下游（查询缓存）失效
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Ingestor struct {
	w    store.Writer
	opts Options
	inv  Invalidator
}

// New：构造导入器；inv 可为 nil
func New(w store.Writer, opts Options, inv Invalidator) *Ingestor {
	opts = opts.withDefaults()
	return &Ingestor{
		w:    &retryWriter{inner: w, maxRetries: opts.MaxRetries, baseDelay: opts.RetryBackoff, timeout: opts.WriteTimeout},
		opts: opts,
		inv:  inv,
	}
}

// Run：消费整个流，每满 BatchSize 条写入一次，结束时总是写出剩余批次（可能为空）
// 异常：默认遇到无效记录即中止，已提交的批次保持不变，未满的当前批次丢弃；
// SkipInvalid 时记录警告并计数后继续。流损坏与写入失败始终中止。
func (in *Ingestor) Run(ctx context.Context, src Source) (Stats, error) {
	st := Stats{RunID: in.opts.RunID}
	if st.RunID == "" {
		st.RunID = uuid.NewString()
	}
	l := logger.Named("ingest").With("run_id", st.RunID)
	l.Info("ingest_start", "batch_size", in.opts.BatchSize, "skip_invalid", in.opts.SkipInvalid)
	start := time.Now()

	batch := make([]position.Record, 0, in.opts.BatchSize)
	seq := 0
	for {
		raw, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		seq++
		var rec position.Record
		if err == nil {
			rec, err = position.Validate(raw)
		}
		if err != nil {
			if !position.IsClientError(err) {
				l.Error("ingest_abort", "seq", seq, "err", err)
				return st, fmt.Errorf("read record %d: %w", seq, err)
			}
			if !in.opts.SkipInvalid {
				l.Error("ingest_invalid_abort", "seq", seq, "err", err)
				return st, fmt.Errorf("record %d: %w", seq, err)
			}
			st.Invalid++
			metrics.IngestInvalidTotal.Inc()
			l.Warn("ingest_invalid_skip", "seq", seq, "object_id", raw.SpaceTrack.ObjectID, "err", err)
			continue
		}
		batch = append(batch, rec)
		st.Records++
		if len(batch) >= in.opts.BatchSize {
			if err := in.flush(ctx, l, batch, &st); err != nil {
				return st, err
			}
			batch = batch[:0]
		}
	}
	if err := in.flush(ctx, l, batch, &st); err != nil {
		return st, err
	}
	l.Info("ingest_done",
		"records", st.Records,
		"invalid", st.Invalid,
		"batches", st.Batches,
		"flushes", st.Flushes,
		"inserted", st.Inserted,
		"duplicates", st.Duplicates,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return st, nil
}

func (in *Ingestor) flush(ctx context.Context, l *slog.Logger, batch []position.Record, st *Stats) error {
	st.Flushes++
	begin := time.Now()
	res, err := in.w.InsertBatch(ctx, batch)
	if err != nil {
		l.Error("ingest_batch_error", "flush", st.Flushes, "size", len(batch), "err", err)
		return fmt.Errorf("flush %d: %w", st.Flushes, err)
	}
	if len(batch) > 0 {
		st.Batches++
		metrics.IngestBatchesTotal.Inc()
		metrics.IngestBatchDurationMs.Observe(float64(time.Since(begin).Milliseconds()))
	}
	metrics.IngestRecordsTotal.Add(float64(len(batch)))
	metrics.IngestInsertedTotal.Add(float64(res.Inserted))
	metrics.IngestDuplicatesTotal.Add(float64(res.Duplicates))
	st.Inserted += res.Inserted
	st.Duplicates += res.Duplicates
	l.Info("ingest_batch",
		"flush", st.Flushes,
		"size", len(batch),
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"total_inserted", st.Inserted,
	)
	if res.Inserted > 0 && in.inv != nil {
		// 失效失败只影响缓存新鲜度，不中止导入
		if err := in.inv.Invalidate(ctx); err != nil {
			l.Warn("ingest_invalidate_error", "err", err)
		}
	}
	return nil
}

// IngestFile：打开文件并完整导入，供命令行与管理接口使用
func IngestFile(ctx context.Context, path string, w store.Writer, opts Options, inv Invalidator) (Stats, error) {
	src, err := OpenFile(path)
	if err != nil {
		return Stats{}, err
	}
	defer src.Close()
	return New(w, opts, inv).Run(ctx, src)
}
