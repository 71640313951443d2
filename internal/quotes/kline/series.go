package kline

import (
	"sync"
)

// Series：只追加的 bar 序列，下标 0..N-1 稳定不变。
// 最后一根通常是“正在构建”的 bar；收盘后 closed 置位且不再修改。
// 写入方是 Feed 的 goroutine，读取方是导出 tick 循环。
type Series struct {
	mu     sync.RWMutex
	symbol string
	bars   []Bar
	closed []bool
	index  map[int64]int // StartMs -> 下标

	notify chan struct{}
}

func NewSeries(symbol string, capacity int) *Series {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Series{
		symbol: symbol,
		bars:   make([]Bar, 0, capacity),
		closed: make([]bool, 0, capacity),
		index:  make(map[int64]int, capacity),
		notify: make(chan struct{}, 1),
	}
}

func (s *Series) Symbol() string { return s.symbol }

// Upsert 写入或更新一根 bar：
// - StartMs 已存在：未收盘则覆盖（closed=true 时同时收盘）；已收盘的忽略
// - StartMs 比最后一根新：追加
// - 比最后一根旧且不存在：破坏只追加语义，丢弃
// 返回是否发生了变化
func (s *Series) Upsert(b Bar, closed bool) bool {
	s.mu.Lock()
	changed := s.upsertLocked(b, closed)
	s.mu.Unlock()

	if changed {
		s.signal()
	}
	return changed
}

func (s *Series) upsertLocked(b Bar, closed bool) bool {
	if i, ok := s.index[b.StartMs]; ok {
		if s.closed[i] {
			return false
		}
		s.bars[i] = b
		s.closed[i] = closed
		return true
	}
	if n := len(s.bars); n > 0 && b.StartMs < s.bars[n-1].StartMs {
		return false
	}
	s.index[b.StartMs] = len(s.bars)
	s.bars = append(s.bars, b)
	s.closed = append(s.closed, closed)
	return true
}

// Seed 用历史（已收盘）bar 预填充，返回实际写入条数
func (s *Series) Seed(bars []Bar) int {
	s.mu.Lock()
	n := 0
	for _, b := range bars {
		if s.upsertLocked(b, true) {
			n++
		}
	}
	s.mu.Unlock()

	if n > 0 {
		s.signal()
	}
	return n
}

func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars)
}

// At 越界时返回零值
func (s *Series) At(i int) Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.bars) {
		return Bar{}
	}
	return s.bars[i]
}

func (s *Series) Closed(i int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.closed) {
		return false
	}
	return s.closed[i]
}

// Range 拷贝 [from, to] 闭区间
func (s *Series) Range(from, to int) []Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	if to >= len(s.bars) {
		to = len(s.bars) - 1
	}
	if from > to {
		return nil
	}
	out := make([]Bar, to-from+1)
	copy(out, s.bars[from:to+1])
	return out
}

// Notify 有变化时收到一个信号（合并通知，缓冲 1）
func (s *Series) Notify() <-chan struct{} { return s.notify }

func (s *Series) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
