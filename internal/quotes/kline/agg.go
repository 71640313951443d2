package kline

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Scale：定点数的缩放倍率（1e8 = 8位小数）
// K 线需要大量 max/min 比较和 volume 累加，用 float64 误差会累积。
const Scale = int64(100_000_000)

// Bar：K 线（OHLCV + 盘口成交拆分）
// - StartMs/EndMs 表示这个 bar 覆盖的时间窗：[Start, End)
// - 价格/量都是定点数（Scale=1e8）
// - BidVolume：主动卖（打在买一）的量；AskVolume：主动买（吃卖一）的量
// - OpenInterest：现货没有，0 表示缺失
type Bar struct {
	Symbol   string        `json:"symbol"`
	Interval time.Duration `json:"interval"`
	TF       string        `json:"tf"`
	StartMs  int64         `json:"start_ms"`
	EndMs    int64         `json:"end_ms"`

	Open  int64 `json:"open"`
	High  int64 `json:"high"`
	Low   int64 `json:"low"`
	Close int64 `json:"close"`

	Volume       int64 `json:"volume"`
	BidVolume    int64 `json:"bid_volume"`
	AskVolume    int64 `json:"ask_volume"`
	Count        int64 `json:"count"`
	OpenInterest int64 `json:"open_interest"`
}

// Time bar 的开始时间（UTC）
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.StartMs).UTC()
}

// String：仅用于打印/调试
func (b Bar) String() string {
	return fmt.Sprintf("%s %s [%d,%d) O=%s H=%s L=%s C=%s V=%s bid=%s ask=%s n=%d",
		b.Symbol, b.Interval,
		b.StartMs, b.EndMs,
		FormatFixed(b.Open), FormatFixed(b.High), FormatFixed(b.Low), FormatFixed(b.Close),
		FormatFixed(b.Volume), FormatFixed(b.BidVolume), FormatFixed(b.AskVolume), b.Count,
	)
}

// TradeAgg 维护每个 symbol 正在构建的 bar。
// 收到 trade 时：
// - 计算它属于哪个时间桶，更新 OHLCV
// - 每次更新都通过 onUpdate 吐出“未收盘”的 bar（给 Series 做最新一根）
// - watermark 越过 EndMs 的 bar 通过 emit 吐出“已收盘”的 bar
// - 所在桶已经越过 watermark 的 trade 丢弃
type TradeAgg struct {
	intervalMs      int64
	offsetMs        int64 // 桶对齐偏移，0 表示 UTC
	reorderWindowMs int64 // 允许乱序窗口，0 表示不允许

	sym map[string]*symState

	onUpdate func(Bar)
	emit     func(Bar)

	lateDrops int64
}

type symState struct {
	latestTsMs int64
	// bars: key = bucketStartMs
	bars map[int64]*Bar

	lastEmittedStartMs int64
	hasEmitted         bool
}

// NewTradeAgg：interval 是 bar 周期；tzOffset 用于日线按时区对齐
func NewTradeAgg(interval, tzOffset, reorderWindow time.Duration, emit func(Bar)) *TradeAgg {
	return &TradeAgg{
		intervalMs:      int64(interval / time.Millisecond),
		offsetMs:        int64(tzOffset / time.Millisecond),
		reorderWindowMs: int64(reorderWindow / time.Millisecond),
		sym:             make(map[string]*symState, 8),
		emit:            emit,
	}
}

// OnUpdate 注册未收盘 bar 的更新回调
func (a *TradeAgg) OnUpdate(fn func(Bar)) { a.onUpdate = fn }

// LateDrops 被丢弃的乱序 trade 数
func (a *TradeAgg) LateDrops() int64 { return a.lateDrops }

// OfferTrade：喂入一笔 trade
func (a *TradeAgg) OfferTrade(t Trade) {
	price, ok := ParseFixed(t.PriceStr)
	if !ok {
		return
	}
	size, ok := ParseFixed(t.SizeStr)
	if !ok {
		return
	}

	st := a.state(t.Symbol)
	if t.TsUnixMs > st.latestTsMs {
		st.latestTsMs = t.TsUnixMs
	}
	watermark := st.latestTsMs - a.reorderWindowMs

	bs := bucketStartMs(t.TsUnixMs, a.intervalMs, a.offsetMs)
	// 所在桶已经越过 watermark（或已 emit）：乱序太久，丢弃
	if bs+a.intervalMs <= watermark || (st.hasEmitted && bs <= st.lastEmittedStartMs) {
		a.lateDrops++
		a.emitReady(st, watermark)
		return
	}

	b := st.bars[bs]
	if b == nil {
		b = &Bar{
			Symbol:   t.Symbol,
			Interval: time.Duration(a.intervalMs) * time.Millisecond,
			StartMs:  bs,
			EndMs:    bs + a.intervalMs,
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
		}
		st.bars[bs] = b
	} else {
		if price > b.High {
			b.High = price
		}
		if price < b.Low {
			b.Low = price
		}
		b.Close = price
	}
	b.Volume += size
	b.Count++
	// maker 是卖方 => taker 主动买，成交在 ask
	switch t.MakerSide {
	case SideSell:
		b.AskVolume += size
	case SideBuy:
		b.BidVolume += size
	}

	a.emitReady(st, watermark)
	if a.onUpdate != nil {
		if cur := st.bars[bs]; cur != nil {
			a.onUpdate(*cur)
		}
	}
}

// Advance 按墙钟推进 watermark：行情清淡时没有新 trade，bar 也要能收盘
func (a *TradeAgg) Advance(nowMs int64) {
	for _, st := range a.sym {
		a.emitReady(st, nowMs-a.reorderWindowMs)
	}
}

func (a *TradeAgg) state(symbol string) *symState {
	st := a.sym[symbol]
	if st == nil {
		st = &symState{bars: make(map[int64]*Bar, 4)}
		a.sym[symbol] = st
	}
	return st
}

// emitReady：把 EndMs <= watermark 的 bar 按时间顺序 emit 掉
func (a *TradeAgg) emitReady(st *symState, watermarkMs int64) {
	ready := make([]int64, 0, 4)
	for start, b := range st.bars {
		if b.EndMs <= watermarkMs {
			ready = append(ready, start)
		}
	}
	if len(ready) == 0 {
		return
	}
	slices.Sort(ready)

	for _, start := range ready {
		a.emit(*st.bars[start])
		delete(st.bars, start)
		st.lastEmittedStartMs = start
		st.hasEmitted = true
	}
}

// Flush：输出所有 remaining bars（按 start 排序），用于退出/测试
func (a *TradeAgg) Flush() {
	for _, st := range a.sym {
		keys := make([]int64, 0, len(st.bars))
		for start, b := range st.bars {
			if b.Count > 0 {
				keys = append(keys, start)
			}
		}
		slices.Sort(keys)
		for _, start := range keys {
			a.emit(*st.bars[start])
			st.lastEmittedStartMs = start
			st.hasEmitted = true
		}
		st.bars = make(map[int64]*Bar, 4)
	}
}

// bucketStartMs：计算某个时间戳属于哪个桶的开始时间（毫秒）
// 公式：((ts+off)/interval)*interval - off
func bucketStartMs(tsMs, intervalMs, offsetMs int64) int64 {
	x := tsMs + offsetMs
	return (x/intervalMs)*intervalMs - offsetMs
}

// ParseFixed：把 decimal string 解析为定点 int64（scale=1e8）
// - 小数最多取 8 位，多余部分直接截断
// - 不支持科学计数法
func ParseFixed(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")

	var ip int64
	for i := 0; i < len(intPart); i++ {
		c := intPart[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		ip = ip*10 + int64(c-'0')
	}

	fp := int64(0)
	digits := 0
	for i := 0; i < len(fracPart) && digits < 8; i++ {
		c := fracPart[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		fp = fp*10 + int64(c-'0')
		digits++
	}
	for digits < 8 {
		fp *= 10
		digits++
	}

	val := ip*Scale + fp
	if neg {
		val = -val
	}
	return val, true
}

// FormatFixed：把定点 int64 转回字符串，用于打印/debug
func FormatFixed(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%d.%08d", v/Scale, v%Scale)
	if neg {
		return "-" + s
	}
	return s
}
