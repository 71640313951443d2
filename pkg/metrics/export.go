package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExportSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeflow",
		Name:      "export_sent_total",
		Help:      "Bars counted as sent (optimistic, on dispatch acceptance)",
	}, []string{"mode"})

	// result: accepted/rejected/success/empty/failure/stuck
	ExportRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeflow",
		Name:      "export_requests_total",
		Help:      "Export requests partitioned by mode and lifecycle result",
	}, []string{"mode", "result"})

	ExportFailedRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradeflow",
		Name:      "export_failed_requests",
		Help:      "Current consecutive failed request count",
	})

	ExportPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tradeflow",
		Name:      "export_phase",
		Help:      "Request lifecycle phase (1 for the current phase)",
	}, []string{"phase"})

	ExportStallSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradeflow",
		Name:      "export_stall_skips_total",
		Help:      "Historical chunks skipped by stall-breaking",
	})

	ExportHistoricalCursor = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradeflow",
		Name:      "export_historical_cursor",
		Help:      "Next historical chunk start index",
	})

	TransportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tradeflow",
		Name:      "transport_duration_seconds",
		Help:      "Outbound POST latency",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms -> ~40s
	}, []string{"endpoint", "status"})

	// 行情输入侧
	SourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeflow",
		Name:      "source_errors_total",
		Help:      "Market data source disconnects/errors before reconnect",
	}, []string{"source"})

	SeriesBars = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tradeflow",
		Name:      "series_bars",
		Help:      "Number of bars held in the series",
	}, []string{"symbol"})
)

// SetPhase 只把当前 phase 置 1
func SetPhase(current string, all ...string) {
	for _, p := range all {
		v := 0.0
		if p == current {
			v = 1
		}
		ExportPhase.WithLabelValues(p).Set(v)
	}
}
