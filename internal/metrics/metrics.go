// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordRemoteOperation(op, status string, duration time.Duration)
	RecordMessagePosted()
	RecordUserRegistered(created bool)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	remoteOps       *prometheus.CounterVec
	remoteLatency   *prometheus.HistogramVec
	messagesPosted  prometheus.Counter
	usersRegistered *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remoteOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookchat_remote_log_operations_total",
			Help: "リモートログ操作の結果別の合計数",
		}, []string{"op", "status"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bookchat_remote_log_latency_seconds",
			Help:    "リモートログ操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		messagesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookchat_messages_posted_total",
			Help: "ローカルDBに保存されたメッセージの合計数",
		}),
		usersRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookchat_users_registered_total",
			Help: "ユーザー登録リクエストの合計数（新規作成か既存か）",
		}, []string{"created"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookchat_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.remoteOps,
		c.remoteLatency,
		c.messagesPosted,
		c.usersRegistered,
		c.httpStatus,
	)

	return c
}

// RecordRemoteOperation はリモートログ操作の結果とレイテンシを記録する。
func (c *Collector) RecordRemoteOperation(op, status string, duration time.Duration) {
	c.remoteOps.WithLabelValues(op, status).Inc()
	c.remoteLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordMessagePosted はメッセージ保存を記録する。
func (c *Collector) RecordMessagePosted() {
	c.messagesPosted.Inc()
}

// RecordUserRegistered はユーザー登録を記録する。
func (c *Collector) RecordUserRegistered(created bool) {
	c.usersRegistered.WithLabelValues(strconv.FormatBool(created)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
