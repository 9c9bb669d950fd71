package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 资金池指标采集

var (
	collector     *Collector
	collectorOnce sync.Once
)

// Collector 全部指标
type Collector struct {
	// 资金池操作
	PoolOperationsTotal *prometheus.CounterVec
	PoolOperationMs     *prometheus.HistogramVec
	PoolsByStatus       *prometheus.GaugeVec

	// 资金流
	ContributionsTotal prometheus.Counter
	ContributedWei     prometheus.Counter
	RefundedWei        *prometheus.CounterVec

	// 外部调用
	ExternalCallFailures *prometheus.CounterVec

	// 定时任务
	AssetSyncTotal    *prometheus.CounterVec
	AssetSyncDuration prometheus.Histogram

	// API
	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
}

// GetCollector 单例
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

func newCollector() *Collector {
	c := &Collector{}

	c.PoolOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolparty",
			Subsystem: "pool",
			Name:      "operations_total",
			Help:      "Pool operations by name and result",
		},
		[]string{"operation", "result"},
	)

	c.PoolOperationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "poolparty",
			Subsystem: "pool",
			Name:      "operation_latency_ms",
			Help:      "Pool operation latency in milliseconds, chain calls included",
			Buckets:   []float64{1, 5, 25, 100, 500, 1000, 5000, 15000, 60000},
		},
		[]string{"operation"},
	)

	c.PoolsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "poolparty",
			Subsystem: "pool",
			Name:      "by_status",
			Help:      "Number of pools in each status",
		},
		[]string{"status"},
	)

	c.ContributionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "poolparty",
			Subsystem: "funds",
			Name:      "contributions_total",
			Help:      "Accepted contributions",
		},
	)

	c.ContributedWei = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "poolparty",
			Subsystem: "funds",
			Name:      "contributed_wei",
			Help:      "Sum of accepted contributions in wei",
		},
	)

	c.RefundedWei = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolparty",
			Subsystem: "funds",
			Name:      "refunded_wei",
			Help:      "Wei paid back to participants",
		},
		[]string{"reason"},
	)

	c.ExternalCallFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolparty",
			Subsystem: "chain",
			Name:      "external_call_failures_total",
			Help:      "Failed calls to sale targets and asset contracts",
		},
		[]string{"operation"},
	)

	c.AssetSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolparty",
			Subsystem: "task",
			Name:      "asset_sync_total",
			Help:      "Issued asset balance refreshes by result",
		},
		[]string{"result"},
	)

	c.AssetSyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "poolparty",
			Subsystem: "task",
			Name:      "asset_sync_seconds",
			Help:      "Duration of one asset sync round",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poolparty",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "path", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "poolparty",
			Subsystem: "api",
			Name:      "request_latency_ms",
			Help:      "HTTP request latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"method", "path"},
	)

	c.registerAll()

	return c
}

func (c *Collector) registerAll() {
	prometheus.MustRegister(c.PoolOperationsTotal)
	prometheus.MustRegister(c.PoolOperationMs)
	prometheus.MustRegister(c.PoolsByStatus)

	prometheus.MustRegister(c.ContributionsTotal)
	prometheus.MustRegister(c.ContributedWei)
	prometheus.MustRegister(c.RefundedWei)

	prometheus.MustRegister(c.ExternalCallFailures)

	prometheus.MustRegister(c.AssetSyncTotal)
	prometheus.MustRegister(c.AssetSyncDuration)

	prometheus.MustRegister(c.APIRequestsTotal)
	prometheus.MustRegister(c.APIRequestLatency)
}

// RecordOperation 记录一次资金池操作
func (c *Collector) RecordOperation(operation string, err error, latencyMs float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.PoolOperationsTotal.WithLabelValues(operation, result).Inc()
	c.PoolOperationMs.WithLabelValues(operation).Observe(latencyMs)
}

// RecordContribution 记录入金，金额按 wei 近似为浮点
func (c *Collector) RecordContribution(wei float64) {
	c.ContributionsTotal.Inc()
	c.ContributedWei.Add(wei)
}

// RecordRefund 记录退款
func (c *Collector) RecordRefund(reason string, wei float64) {
	if wei <= 0 {
		return
	}
	c.RefundedWei.WithLabelValues(reason).Add(wei)
}

// RecordExternalFailure 记录外部调用失败
func (c *Collector) RecordExternalFailure(operation string) {
	c.ExternalCallFailures.WithLabelValues(operation).Inc()
}

// RecordAssetSync 记录一轮资产同步
func (c *Collector) RecordAssetSync(updated, failed int, elapsed time.Duration) {
	c.AssetSyncTotal.WithLabelValues("updated").Add(float64(updated))
	c.AssetSyncTotal.WithLabelValues("failed").Add(float64(failed))
	c.AssetSyncDuration.Observe(elapsed.Seconds())
}

// SetPoolsByStatus 覆盖各状态的资金池数量
func (c *Collector) SetPoolsByStatus(counts map[string]int64) {
	for status, n := range counts {
		c.PoolsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// RecordAPIRequest 记录 HTTP 请求
func (c *Collector) RecordAPIRequest(method, path, status string, latencyMs float64) {
	c.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, path).Observe(latencyMs)
}

// Handler Prometheus 抓取入口
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer 计时
type Timer struct {
	start time.Time
}

// NewTimer 开始计时
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs 已过去的毫秒数
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
