package export

import (
	"context"
	"time"

	"tradeflow.com/internal/quotes/kline"
)

// BarSource 只追加的 bar 序列（kline.Series 实现）
type BarSource interface {
	Len() int
	Closed(i int) bool
	At(i int) kline.Bar
	// Range 闭区间拷贝
	Range(from, to int) []kline.Bar
}

// Encoder 纯函数：bar -> 请求体
type Encoder interface {
	EncodeSingle(b kline.Bar) ([]byte, error)
	EncodeBatch(bars []kline.Bar, source string) ([]byte, error)
}

// Handle 一次已受理请求的句柄，0 为无效值
type Handle uint64

type Request struct {
	URL     string
	Kind    string // single / batch，熔断和限流按它分桶
	Body    []byte
	Headers map[string]string
	Timeout time.Duration
}

type OutcomeStatus int

const (
	OutcomePending OutcomeStatus = iota
	OutcomeSuccess
	OutcomeFailure
	// OutcomeUnknown 句柄已失效（被丢弃或已读取过终态）
	OutcomeUnknown
)

type Outcome struct {
	Status OutcomeStatus
	Body   []byte
	Err    error
}

// Transport 异步请求原语：Post 立即返回，结果之后通过 Outcome 轮询。
// 至多一个在途请求由 Controller 保证，Transport 本身不限制。
type Transport interface {
	Post(ctx context.Context, req Request) (Handle, error)
	Outcome(h Handle) Outcome
	// Forget 丢弃句柄，之后到达的结果被忽略
	Forget(h Handle)
}
