package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 出站治理：限流 / 熔断
var (
	RateLimitBlockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeflow",
			Name:      "ratelimit_block_total",
			Help:      "Total number of outbound requests blocked by the rate limiter.",
		},
		[]string{"endpoint"},
	)

	CBRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeflow",
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of circuit breaker rejections.",
		},
		[]string{"endpoint", "reason"},
	)

	CBState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tradeflow",
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"endpoint", "state"}, // state: closed/open/half_open
	)
)

var registerOnce sync.Once

// MustRegister 进程里只注册一次（admin router 和 main 都可能调用）
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RateLimitBlockTotal, CBRejectTotal, CBState)
	})
}
