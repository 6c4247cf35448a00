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
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordPurchase()
	RecordDuplicatePurchase()
	RecordLinkIssued()
	RecordLinkRedeemed()
	RecordLinkRejected()
	RecordTurn()
	RecordAIStatus(statusCode int)
	RecordAILatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	purchases     prometheus.Counter
	duplicates    prometheus.Counter
	linksIssued   prometheus.Counter
	linksRedeemed prometheus.Counter
	linksRejected prometheus.Counter
	turns         prometheus.Counter
	aiStatus      *prometheus.CounterVec
	aiLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "explorations_purchases_total",
			Help: "記録された購入の合計数",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "explorations_duplicate_purchases_total",
			Help: "重複として無視された購入記録の合計数",
		}),
		linksIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "explorations_links_issued_total",
			Help: "発行されたアクセスリンクの合計数",
		}),
		linksRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "explorations_links_redeemed_total",
			Help: "使用されたアクセスリンクの合計数",
		}),
		linksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "explorations_links_rejected_total",
			Help: "無効として拒否されたアクセスリンクの合計数",
		}),
		turns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "explorations_turns_total",
			Help: "処理された会話ターンの合計数",
		}),
		aiStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "explorations_ai_status_total",
			Help: "AI APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		aiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "explorations_ai_latency_seconds",
			Help:    "AI API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.purchases,
		c.duplicates,
		c.linksIssued,
		c.linksRedeemed,
		c.linksRejected,
		c.turns,
		c.aiStatus,
		c.aiLatency,
	)

	return c
}

// RecordPurchase は購入の記録を記録する。
func (c *Collector) RecordPurchase() {
	c.purchases.Inc()
}

// RecordDuplicatePurchase は重複購入記録の検出を記録する。
func (c *Collector) RecordDuplicatePurchase() {
	c.duplicates.Inc()
}

// RecordLinkIssued はアクセスリンクの発行を記録する。
func (c *Collector) RecordLinkIssued() {
	c.linksIssued.Inc()
}

// RecordLinkRedeemed はアクセスリンクの使用を記録する。
func (c *Collector) RecordLinkRedeemed() {
	c.linksRedeemed.Inc()
}

// RecordLinkRejected は無効リンクの拒否を記録する。
func (c *Collector) RecordLinkRejected() {
	c.linksRejected.Inc()
}

// RecordTurn は会話ターンの処理を記録する。
func (c *Collector) RecordTurn() {
	c.turns.Inc()
}

// RecordAIStatus はAI APIのHTTPステータスコードを記録する。
func (c *Collector) RecordAIStatus(statusCode int) {
	c.aiStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAILatency はAI API呼び出しのレイテンシを記録する。
func (c *Collector) RecordAILatency(duration time.Duration) {
	c.aiLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
