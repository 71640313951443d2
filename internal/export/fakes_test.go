package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tradeflow.com/internal/quotes/kline"
)

// fakeSource 内存 bar 序列，closed 由测试控制
type fakeSource struct {
	bars   []kline.Bar
	closed []bool
}

func newFakeSource(n int) *fakeSource {
	s := &fakeSource{}
	s.append(n)
	return s
}

// append 追加 n 根；之前的最后一根收盘，新追加的除最后一根外都收盘
func (s *fakeSource) append(n int) {
	if len(s.closed) > 0 && n > 0 {
		s.closed[len(s.closed)-1] = true
	}
	for i := 0; i < n; i++ {
		start := int64(len(s.bars)) * 60_000
		s.bars = append(s.bars, kline.Bar{Symbol: "BTC-USDT", Interval: time.Minute, StartMs: start, EndMs: start + 60_000})
		s.closed = append(s.closed, i < n-1)
	}
}

func (s *fakeSource) Len() int { return len(s.bars) }

func (s *fakeSource) Closed(i int) bool { return i >= 0 && i < len(s.closed) && s.closed[i] }

func (s *fakeSource) At(i int) kline.Bar {
	if i < 0 || i >= len(s.bars) {
		return kline.Bar{}
	}
	return s.bars[i]
}

func (s *fakeSource) Range(from, to int) []kline.Bar {
	from = max(0, from)
	to = min(to, len(s.bars)-1)
	if from > to {
		return nil
	}
	return append([]kline.Bar(nil), s.bars[from:to+1]...)
}

// fakeEncoder 输出可读的标记，便于断言发送了哪个区间
type fakeEncoder struct {
	fail bool
}

func (e fakeEncoder) EncodeSingle(b kline.Bar) ([]byte, error) {
	if e.fail {
		return nil, errors.New("encode failed")
	}
	return []byte(fmt.Sprintf("single:%d", b.StartMs/60_000)), nil
}

func (e fakeEncoder) EncodeBatch(bars []kline.Bar, source string) ([]byte, error) {
	if e.fail {
		return nil, errors.New("encode failed")
	}
	return []byte(fmt.Sprintf("batch:%d-%d:%s", bars[0].StartMs/60_000, bars[len(bars)-1].StartMs/60_000, source)), nil
}

// fakeTransport 同步可控的 transport：
//   - reject：Post 直接拒绝
//   - auto：Post 后立即给出该终态（nil 表示保持 Pending）
type fakeTransport struct {
	mu sync.Mutex

	reject bool
	auto   *Outcome

	next      Handle
	posts     []Request
	outcomes  map[Handle]Outcome
	forgotten map[Handle]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{outcomes: map[Handle]Outcome{}, forgotten: map[Handle]bool{}}
}

func (t *fakeTransport) succeedWith(body string) {
	t.auto = &Outcome{Status: OutcomeSuccess, Body: []byte(body)}
}

func (t *fakeTransport) failWith(err error) {
	t.auto = &Outcome{Status: OutcomeFailure, Err: err}
}

func (t *fakeTransport) Post(_ context.Context, req Request) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reject {
		return 0, errors.New("queue full")
	}
	t.next++
	t.posts = append(t.posts, req)
	if t.auto != nil {
		t.outcomes[t.next] = *t.auto
	} else {
		t.outcomes[t.next] = Outcome{Status: OutcomePending}
	}
	return t.next, nil
}

// resolve 模拟响应晚到
func (t *fakeTransport) resolve(h Handle, out Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes[h] = out
}

func (t *fakeTransport) Outcome(h Handle) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.forgotten[h] {
		return Outcome{Status: OutcomeUnknown}
	}
	out, ok := t.outcomes[h]
	if !ok {
		return Outcome{Status: OutcomeUnknown}
	}
	return out
}

func (t *fakeTransport) Forget(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forgotten[h] = true
	delete(t.outcomes, h)
}

func (t *fakeTransport) bodies() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.posts))
	for _, p := range t.posts {
		out = append(out, string(p.Body))
	}
	return out
}

func settings(mode Mode) Settings {
	return Settings{
		Endpoint: "http://ingest.local/api/v1/market-data/",
		Enabled:  true,
		Mode:     mode,
	}
}
