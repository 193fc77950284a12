// 导入工具：一次性将位置文件（JSON 数组或逐行 JSON）幂等写入配置的存储
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"starlink-api/internal/config"
	"starlink-api/internal/ingest"
	"starlink-api/internal/logger"
	"starlink-api/internal/query"
	"starlink-api/internal/store/backend"
	"starlink-api/internal/utils"
)

func main() {
	logger.Setup()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		file        string
		batchSize   int
		skipInvalid bool
	)
	cmd := &cobra.Command{
		Use:   "position-ingest",
		Short: "Load satellite position records into the store",
		Long: `Load satellite position records into the configured store (STORE_BACKEND).
Records already present (same object_id and creation_date) are skipped, so re-running
the same file is safe.

Examples:
  position-ingest --file starlink_historical_data.json
  position-ingest --file positions.ndjson --batch-size 1000 --skip-invalid`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("batch-size") {
				batchSize = cfg.BatchSize
			}
			if !cmd.Flags().Changed("skip-invalid") {
				skipInvalid = cfg.SkipInvalid
			}
			return run(cmd.Context(), out, cfg, file, ingest.Options{BatchSize: batchSize, SkipInvalid: skipInvalid})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the JSON or NDJSON position file")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", config.DefaultBatchSize, "records per batch write")
	cmd.Flags().BoolVar(&skipInvalid, "skip-invalid", false, "log and skip invalid records instead of aborting")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func run(ctx context.Context, out io.Writer, cfg config.Config, file string, opts ingest.Options) error {
	if opts.BatchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive, got %d", opts.BatchSize)
	}
	st, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 服务端启用了 Redis 缓存时，导入后需递增代数使旧结果失效
	rc := utils.OpenRedisFromEnv()
	if rc != nil {
		defer rc.Close()
	}
	cache := query.NewCache(rc, cfg.QueryCacheTTL)

	stats, err := ingest.IngestFile(ctx, file, st, opts, cache)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "run %s: %d records, %d inserted, %d duplicates, %d invalid, %d batches\n",
		stats.RunID, stats.Records, stats.Inserted, stats.Duplicates, stats.Invalid, stats.Batches)
	return nil
}
