package collector

import (
	"context"
	"sync/atomic"
	"time"

	"tradeflow.com/internal/export"
	"tradeflow.com/internal/quotes/gateway"
	"tradeflow.com/internal/quotes/kline"
	"tradeflow.com/pkg/metrics"
)

// StatusEvent 发到 export:status:<symbol> 的内容
type StatusEvent struct {
	Symbol string `json:"symbol"`
	export.Report
}

// Loop 模拟自动循环的图表研究：新 bar 按下标顺序逐个访问（position = 该下标），
// 没有新 bar 时按周期在最新下标上做一次更新 tick。
// Exporter 只在这个 goroutine 里被调用。
type Loop struct {
	series   *kline.Series
	exp      *export.Exporter
	controls *Controls
	pub      *gateway.Publisher
	every    atomic.Int64 // time.Duration

	next int // 下一个要访问的下标
	last atomic.Pointer[export.Report]
}

func NewLoop(series *kline.Series, exp *export.Exporter, controls *Controls, pub *gateway.Publisher, every time.Duration) *Loop {
	l := &Loop{series: series, exp: exp, controls: controls, pub: pub}
	l.SetInterval(every)
	return l
}

func (l *Loop) SetInterval(d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	l.every.Store(int64(d))
}

// Last 最近一次 tick 的报告，还没 tick 过时为 nil
func (l *Loop) Last() *export.Report { return l.last.Load() }

func (l *Loop) Run(ctx context.Context) error {
	cur := time.Duration(l.every.Load())
	ticker := time.NewTicker(cur)
	defer ticker.Stop()

	l.Step(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.series.Notify():
			l.Step(ctx)
		case <-ticker.C:
			l.Step(ctx)
			if d := time.Duration(l.every.Load()); d != cur {
				cur = d
				ticker.Reset(d)
			}
		}
	}
}

// Step 先访问所有新下标；没有新下标时在最新下标上 tick 一次
func (l *Loop) Step(ctx context.Context) {
	n := l.series.Len()
	metrics.SeriesBars.WithLabelValues(l.series.Symbol()).Set(float64(n))
	if l.next >= n {
		l.tick(ctx, n-1)
		return
	}
	for ; l.next < n; l.next++ {
		l.tick(ctx, l.next)
	}
}

func (l *Loop) tick(ctx context.Context, pos int) {
	rep := l.exp.Tick(ctx, l.controls.Snapshot(), pos)
	l.controls.Ack(rep)
	l.last.Store(&rep)
	if l.pub != nil {
		l.pub.PublishChanged(ctx, StatusEvent{Symbol: l.series.Symbol(), Report: rep})
	}
}
