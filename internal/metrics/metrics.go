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
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordRefreshSuccess()
	RecordRefreshFailure(reason string)
	RecordListingStatus(statusCode int)
	RecordListingLatency(duration time.Duration)
	RecordItemsLoaded(count int)
	RecordSearch()
	RecordExtractorFallback()
	RecordTokenRefresh(success bool)
	RecordVoiceRestart()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	refreshSuccess    prometheus.Counter
	refreshFail       *prometheus.CounterVec
	listingStatus     *prometheus.CounterVec
	listingLatency    prometheus.Histogram
	itemsLoaded       prometheus.Counter
	searches          prometheus.Counter
	extractorFallback prometheus.Counter
	tokenRefresh      *prometheus.CounterVec
	voiceRestarts     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		refreshSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canvas_refresh_success_total",
			Help: "ライブラリ再構築成功の合計数",
		}),
		refreshFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canvas_refresh_fail_total",
			Help: "ライブラリ再構築失敗の理由別合計数",
		}, []string{"reason"}),
		listingStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canvas_listing_status_total",
			Help: "ストレージAPIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		listingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "canvas_listing_latency_seconds",
			Help:    "フォルダリスティングのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canvas_items_loaded_total",
			Help: "ライブラリに取り込まれたアイテムの合計数",
		}),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canvas_search_total",
			Help: "実行された検索の合計数",
		}),
		extractorFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canvas_extractor_fallback_total",
			Help: "キーワード抽出器の失敗によるフォールバック分割の合計数",
		}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canvas_token_refresh_total",
			Help: "アクセストークン再取得の結果別合計数",
		}, []string{"result"}),
		voiceRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canvas_voice_restart_total",
			Help: "音声認識ストリームの自動再開の合計数",
		}),
	}

	reg.MustRegister(
		c.refreshSuccess,
		c.refreshFail,
		c.listingStatus,
		c.listingLatency,
		c.itemsLoaded,
		c.searches,
		c.extractorFallback,
		c.tokenRefresh,
		c.voiceRestarts,
	)

	return c
}

// RecordRefreshSuccess はライブラリ再構築成功を記録する。
func (c *Collector) RecordRefreshSuccess() {
	c.refreshSuccess.Inc()
}

// RecordRefreshFailure はライブラリ再構築失敗を理由付きで記録する。
func (c *Collector) RecordRefreshFailure(reason string) {
	c.refreshFail.WithLabelValues(reason).Inc()
}

// RecordListingStatus はストレージAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordListingStatus(statusCode int) {
	c.listingStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordListingLatency はリスティングのレイテンシを記録する。
func (c *Collector) RecordListingLatency(duration time.Duration) {
	c.listingLatency.Observe(duration.Seconds())
}

// RecordItemsLoaded は取り込まれたアイテム数を記録する。
func (c *Collector) RecordItemsLoaded(count int) {
	c.itemsLoaded.Add(float64(count))
}

// RecordSearch は検索の実行を記録する。
func (c *Collector) RecordSearch() {
	c.searches.Inc()
}

// RecordExtractorFallback はフォールバック分割の発生を記録する。
func (c *Collector) RecordExtractorFallback() {
	c.extractorFallback.Inc()
}

// RecordTokenRefresh はトークン再取得の結果を記録する。
func (c *Collector) RecordTokenRefresh(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.tokenRefresh.WithLabelValues(result).Inc()
}

// RecordVoiceRestart は音声認識ストリームの自動再開を記録する。
func (c *Collector) RecordVoiceRestart() {
	c.voiceRestarts.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
