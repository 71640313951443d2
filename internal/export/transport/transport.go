package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"tradeflow.com/internal/export"
	"tradeflow.com/pkg/common"
	"tradeflow.com/pkg/logger"
	"tradeflow.com/pkg/metrics"
	"tradeflow.com/pkg/ratelimit"
	"tradeflow.com/pkg/safe"
	"tradeflow.com/pkg/trace"
	"tradeflow.com/pkg/xerr"
)

const HeaderRequestID = "X-Request-Id"

type Config struct {
	RPS     float64        `mapstructure:"rps"`
	Burst   int            `mapstructure:"burst"`
	Breaker ratelimit.Rule `mapstructure:"breaker"`

	// 响应体读取上限
	MaxBody int64 `mapstructure:"max_body"`
}

// HTTPError 非 2xx 响应；实现 StatusCoder 供熔断器分类
type HTTPError struct {
	Code int
	Body string
}

func (e *HTTPError) Error() string   { return "http status " + strconv.Itoa(e.Code) + ": " + e.Body }
func (e *HTTPError) StatusCode() int { return e.Code }

type call struct {
	done   bool
	out    export.Outcome
	cancel context.CancelFunc
}

// Client 实现 export.Transport：Post 立即返回句柄，请求在独立 goroutine 里完成，
// 结果存起来等 tick 循环来取。不限制并发数，至多一个在途由 Controller 保证。
type Client struct {
	http     *http.Client
	breakers *ratelimit.Manager
	limiter  *ratelimit.Store
	tracer   oteltrace.Tracer
	maxBody  int64

	mu    sync.Mutex
	next  export.Handle
	calls map[export.Handle]*call
}

func New(cfg Config) *Client {
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 1 << 20
	}
	return &Client{
		http:     &http.Client{},
		breakers: ratelimit.NewManager(cfg.Breaker, nil),
		limiter:  ratelimit.NewStore(rate.Limit(cfg.RPS), cfg.Burst, 0),
		tracer:   trace.Tracer("tradeflow/export/transport"),
		maxBody:  cfg.MaxBody,
		calls:    make(map[export.Handle]*call, 4),
	}
}

// SetRate 配置热更新
func (c *Client) SetRate(rps float64, burst int) {
	c.limiter.SetRate(rate.Limit(rps), burst)
}

func (c *Client) Post(ctx context.Context, req export.Request) (export.Handle, error) {
	kind := req.Kind
	if kind == "" {
		kind = "single"
	}
	if c.breakers.Open(kind) {
		metrics.CBRejectTotal.WithLabelValues(kind, "open").Inc()
		return 0, xerr.NewErrCode(xerr.BreakerOpen)
	}
	if !c.limiter.Allow(kind) {
		metrics.RateLimitBlockTotal.WithLabelValues(kind).Inc()
		return 0, xerr.NewErrCode(xerr.RateLimited)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = time.Duration(export.DefaultTimeoutSeconds) * time.Second
	}
	// 请求的生命周期不跟随 tick 的 ctx，只保留其中的 trace 信息
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	c.mu.Lock()
	c.next++
	h := c.next
	c.calls[h] = &call{cancel: cancel}
	c.mu.Unlock()

	safe.GoRecover(reqCtx, func(ctx context.Context) {
		body, err := c.breakers.Get(kind).Execute(func() ([]byte, error) {
			return c.roundTrip(ctx, kind, req)
		})
		c.finish(h, body, err)
	}, func(r any) {
		c.finish(h, nil, fmt.Errorf("transport panic: %v", r))
	})
	return h, nil
}

func (c *Client) roundTrip(ctx context.Context, kind string, req export.Request) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "export.post", oteltrace.WithSpanKind(oteltrace.SpanKindClient))
	defer span.End()

	reqID := common.RequestIDFromCtx(ctx)
	span.SetAttributes(
		attribute.String("http.url", req.URL),
		attribute.String("export.kind", kind),
		attribute.Int("http.request.body.size", len(req.Body)),
		attribute.String("request.id", reqID),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set(HeaderRequestID, reqID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.TransportDuration.WithLabelValues(kind, "error").Observe(time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "round trip")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	metrics.TransportDuration.WithLabelValues(kind, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		return nil, &HTTPError{Code: resp.StatusCode, Body: truncate(body, 256)}
	}
	return body, nil
}

func (c *Client) finish(h export.Handle, body []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.calls[h]
	if !ok {
		// 已被 Forget，结果丢弃
		logger.Debug(context.Background(), "dropping result of forgotten request", zap.Uint64("handle", uint64(h)))
		return
	}
	cl.done = true
	if err != nil {
		cl.out = export.Outcome{Status: export.OutcomeFailure, Err: err}
	} else {
		cl.out = export.Outcome{Status: export.OutcomeSuccess, Body: body}
	}
	cl.cancel()
}

// Outcome 终态只返回一次，之后句柄失效
func (c *Client) Outcome(h export.Handle) export.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.calls[h]
	if !ok {
		return export.Outcome{Status: export.OutcomeUnknown}
	}
	if !cl.done {
		return export.Outcome{Status: export.OutcomePending}
	}
	delete(c.calls, h)
	return cl.out
}

func (c *Client) Forget(h export.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.calls[h]; ok {
		cl.cancel()
		delete(c.calls, h)
	}
}

// Inflight 尚未被取走的请求数
func (c *Client) Inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

var _ export.Transport = (*Client)(nil)
