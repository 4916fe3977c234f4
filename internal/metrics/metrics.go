// ============================================================================
// ingestflow Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集並暴露提交與輪詢客戶端的運行指標
//
// 指標分類:
//
//   1. 請求計數器 (CounterVec) - 依 endpoint 與錯誤類型分類：
//      - ingestflow_requests_total{endpoint, outcome}
//        * endpoint: ingest | status
//        * outcome: ok | job_not_found | http_error | network_error | ...
//
//   2. 性能指標 (HistogramVec)：
//      - ingestflow_request_duration_seconds{endpoint}
//
//   3. 輪詢指標：
//      - ingestflow_stale_responses_total: 因 handle 切換或亂序而丟棄的回應
//      - ingestflow_watch_active: 目前是否啟用 watch (0/1)
//      - ingestflow_job_progress_percent: 追蹤中任務的完成百分比
//
// Prometheus 查詢示例:
//
//   # 輪詢錯誤率
//   sum(rate(ingestflow_requests_total{endpoint="status",outcome!="ok"}[5m]))
//     / sum(rate(ingestflow_requests_total{endpoint="status"}[5m]))
//
//   # 95 分位延遲
//   histogram_quantile(0.95, sum by (le) (rate(ingestflow_request_duration_seconds_bucket[5m])))
//
// HTTP 端點:
//   watch 命令在啟用 metrics 時通過 /metrics 暴露，默認端口 9090
//
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// outcomeOK 成功請求的 outcome 標籤
const outcomeOK = "ok"

// Collector Prometheus 指標收集器
// 同時實作 client.Recorder 與 poller.Recorder
type Collector struct {
	// 請求指標
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// 輪詢指標
	staleResponses prometheus.Counter
	watchActive    prometheus.Gauge
	jobProgress    prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewCollector 創建新的指標收集器並註冊到 reg
// reg 為 nil 時使用 prometheus.DefaultRegisterer
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestflow_requests_total",
			Help: "Total number of backend requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingestflow_request_duration_seconds",
			Help:    "Backend request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		staleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingestflow_stale_responses_total",
			Help: "Total number of status responses dropped as stale",
		}),
		watchActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingestflow_watch_active",
			Help: "Whether periodic status polling is enabled (1) or not (0)",
		}),
		jobProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingestflow_job_progress_percent",
			Help: "Completed batch percentage of the tracked job",
		}),
	}

	// 註冊所有指標
	reg.MustRegister(
		c.requests,
		c.requestDuration,
		c.staleResponses,
		c.watchActive,
		c.jobProgress,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	} else {
		c.gatherer = prometheus.DefaultGatherer
	}

	return c
}

// RecordRequest 記錄一次後端請求（client.Recorder）
func (c *Collector) RecordRequest(endpoint string, kind client.ErrorKind, duration time.Duration) {
	outcome := string(kind)
	if kind == client.KindNone {
		outcome = outcomeOK
	}
	c.requests.WithLabelValues(endpoint, outcome).Inc()
	c.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordStaleResponse 記錄被丟棄的過期回應（poller.Recorder）
func (c *Collector) RecordStaleResponse() {
	c.staleResponses.Inc()
}

// SetWatching 設置 watch 狀態（poller.Recorder）
func (c *Collector) SetWatching(watching bool) {
	if watching {
		c.watchActive.Set(1)
		return
	}
	c.watchActive.Set(0)
}

// SetProgress 設置追蹤中任務的完成百分比（poller.Recorder）
func (c *Collector) SetProgress(percent float64) {
	c.jobProgress.Set(percent)
}

// Handler 返回暴露本收集器所屬 registry 的 HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Server 包裝 metrics HTTP 伺服器
type Server struct {
	srv *http.Server
}

// NewServer 建立監聽 port 的 /metrics 伺服器
func NewServer(port int, handler http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Addr 返回監聽地址
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Start 在背景 goroutine 中啟動伺服器，錯誤通過 errCh 回報
//
// 返回值：
//   - <-chan error: 伺服器非正常結束時收到錯誤
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown 優雅地關閉伺服器
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
