package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"tradeflow.com/pkg/metrics"
)

type Rule struct {
	// Half-Open 状态允许通过的探测请求数（MaxRequests=0 时库会当作 1）
	MaxRequests uint32 `mapstructure:"max_requests"`

	// Closed 状态计数窗口
	Interval time.Duration `mapstructure:"interval"`

	// Rolling window 每个 bucket 周期（>0 则启用 rolling window）
	BucketPeriod time.Duration `mapstructure:"bucket_period"`

	// Open 状态持续时间，到期进入 Half-Open
	Timeout time.Duration `mapstructure:"timeout"`

	// 触发熔断条件（两种之一即可）
	TripConsecutiveFailures uint32  `mapstructure:"trip_consecutive_failures"`
	TripFailureRate         float64 `mapstructure:"trip_failure_rate"`
	TripMinRequests         uint32  `mapstructure:"trip_min_requests"`
}

// StatusCoder 由 transport 的 HTTP 错误实现；这里不反向依赖 transport 包
type StatusCoder interface {
	StatusCode() int
}

// Manager 按 endpoint（single / batch）各持有一个熔断器
type Manager struct {
	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[[]byte]

	defaultRule Rule
	rules       map[string]Rule
}

func NewManager(defaultRule Rule, perEndpoint map[string]Rule) *Manager {
	if defaultRule.MaxRequests == 0 {
		defaultRule.MaxRequests = 1
	}
	if defaultRule.Timeout <= 0 {
		defaultRule.Timeout = 30 * time.Second
	}
	if defaultRule.Interval <= 0 {
		defaultRule.Interval = 60 * time.Second
	}
	if defaultRule.TripConsecutiveFailures == 0 && defaultRule.TripFailureRate == 0 {
		defaultRule.TripConsecutiveFailures = 10
	}
	if defaultRule.TripMinRequests == 0 {
		defaultRule.TripMinRequests = 20
	}

	return &Manager{
		m:           make(map[string]*gobreaker.CircuitBreaker[[]byte], 4),
		defaultRule: defaultRule,
		rules:       perEndpoint,
	}
}

func (m *Manager) Get(endpoint string) *gobreaker.CircuitBreaker[[]byte] {
	// 快路径：读锁
	m.mu.RLock()
	cb := m.m[endpoint]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	// 慢路径：创建
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb = m.m[endpoint]; cb != nil {
		return cb
	}

	rule, ok := m.rules[endpoint]
	if !ok {
		rule = m.defaultRule
	}
	st := gobreaker.Settings{
		Name:         endpoint,
		MaxRequests:  rule.MaxRequests,
		Interval:     rule.Interval,
		BucketPeriod: rule.BucketPeriod,
		Timeout:      rule.Timeout,

		ReadyToTrip: func(c gobreaker.Counts) bool {
			// 1) 连续失败阈值优先
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			// 2) 失败率阈值
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				failRate := float64(c.TotalFailures) / float64(c.Requests)
				return failRate >= rule.TripFailureRate
			}
			return false
		},

		IsSuccessful: isSuccessfulForBreaker,

		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CBState.WithLabelValues(name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(name, to.String()).Set(1)
		},
	}

	cb = gobreaker.NewCircuitBreaker[[]byte](st)
	metrics.CBState.WithLabelValues(endpoint, cb.State().String()).Set(1)
	m.m[endpoint] = cb
	return cb
}

// Open 熔断打开时 transport 直接拒绝受理，不再起 goroutine
func (m *Manager) Open(endpoint string) bool {
	return m.Get(endpoint).State() == gobreaker.StateOpen
}

func isSuccessfulForBreaker(err error) bool {
	if err == nil {
		return true
	}
	// 调用方主动取消（disable 时丢弃句柄）不代表下游不健康
	if errors.Is(err, context.Canceled) {
		return true
	}

	var sc StatusCoder
	if !errors.As(err, &sc) {
		// 超时 / 连接失败：计入熔断
		return false
	}

	code := sc.StatusCode()
	switch {
	// 下游限流：计入，让调用方降压
	case code == http.StatusTooManyRequests:
		return false
	// 4xx：鉴权/参数问题，不代表下游不健康
	case code >= 400 && code < 500:
		return true
	default:
		return false
	}
}
