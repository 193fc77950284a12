package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starlink_ingest_records_total",
		Help: "Total validated records handed to the store",
	})
	IngestInvalidTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starlink_ingest_invalid_total",
		Help: "Total records skipped by validation",
	})
	IngestBatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starlink_ingest_batches_total",
		Help: "Total non-empty batch writes",
	})
	IngestInsertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starlink_ingest_inserted_total",
		Help: "Total rows actually inserted",
	})
	IngestDuplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starlink_ingest_duplicates_total",
		Help: "Total rows skipped because the key already existed",
	})
	IngestWriteRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starlink_ingest_write_retries_total",
		Help: "Total batch write retries",
	})
	IngestBatchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "starlink_ingest_batch_duration_ms",
		Help:    "Batch write duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	QueryRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starlink_query_requests_total",
		Help: "Total queries by kind and outcome",
	}, []string{"query", "outcome"})
	QueryDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "starlink_query_duration_ms",
		Help:    "Query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"query"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starlink_cache_hits_total",
		Help: "Total redis cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starlink_cache_misses_total",
		Help: "Total redis cache misses",
	})
)

func init() {
	prometheus.MustRegister(IngestRecordsTotal)
	prometheus.MustRegister(IngestInvalidTotal)
	prometheus.MustRegister(IngestBatchesTotal)
	prometheus.MustRegister(IngestInsertedTotal)
	prometheus.MustRegister(IngestDuplicatesTotal)
	prometheus.MustRegister(IngestWriteRetriesTotal)
	prometheus.MustRegister(IngestBatchDurationMs)
	prometheus.MustRegister(QueryRequestsTotal)
	prometheus.MustRegister(QueryDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
