package kline

import (
	"context"
	"sync/atomic"
	"time"
)

// FeedConfig：单 symbol、单周期的聚合参数
type FeedConfig struct {
	Interval      time.Duration
	TZOffset      time.Duration
	ReorderWindow time.Duration

	// 背压策略：inbox 满时是阻塞还是丢弃
	InboxSize    int
	DropWhenFull bool

	// 行情清淡时按墙钟推进 watermark 的频率
	AdvanceEvery time.Duration
}

// Feed：trade -> TradeAgg -> Series。
// TradeAgg 内部的 map 只在 Run 的 goroutine 里访问，无锁。
type Feed struct {
	cfg    FeedConfig
	inbox  chan Trade
	agg    *TradeAgg
	series *Series
	now    func() time.Time

	dropped atomic.Int64
}

func NewFeed(cfg FeedConfig, series *Series) *Feed {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 8192
	}
	if cfg.AdvanceEvery <= 0 {
		cfg.AdvanceEvery = time.Second
	}
	f := &Feed{
		cfg:    cfg,
		inbox:  make(chan Trade, cfg.InboxSize),
		series: series,
		now:    time.Now,
	}
	f.agg = NewTradeAgg(cfg.Interval, cfg.TZOffset, cfg.ReorderWindow, func(b Bar) {
		series.Upsert(b, true)
	})
	f.agg.OnUpdate(func(b Bar) {
		series.Upsert(b, false)
	})
	return f
}

func (f *Feed) Series() *Series { return f.series }

// Dropped inbox 满时被丢弃的 trade 数
func (f *Feed) Dropped() int64 { return f.dropped.Load() }

// OfferTrade：只接收本 Series 的 symbol
func (f *Feed) OfferTrade(t Trade) bool {
	if t.Symbol != f.series.Symbol() {
		return false
	}
	if !f.cfg.DropWhenFull {
		f.inbox <- t
		return true
	}
	select {
	case f.inbox <- t:
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}

// Run 阻塞到 ctx 结束；退出前不 flush：未收盘的 bar 保持未收盘
func (f *Feed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.AdvanceEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-f.inbox:
			f.agg.OfferTrade(t)
		case <-ticker.C:
			f.agg.Advance(f.now().UnixMilli())
		}
	}
}
