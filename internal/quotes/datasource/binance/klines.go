package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
	"tradeflow.com/internal/quotes/kline"
)

// KlineClient 拉取 REST 历史 K 线，用于启动时预填充 Series
type KlineClient struct {
	BaseURL string // e.g. https://api.binance.com
	HTTP    *http.Client
	Now     func() time.Time
}

func NewKlineClient() *KlineClient {
	return &KlineClient{
		BaseURL: "https://api.binance.com",
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		Now:     time.Now,
	}
}

// 单次请求上限
const maxKlineLimit = 1000

var intervals = map[time.Duration]string{
	time.Minute:      "1m",
	3 * time.Minute:  "3m",
	5 * time.Minute:  "5m",
	15 * time.Minute: "15m",
	30 * time.Minute: "30m",
	time.Hour:        "1h",
	2 * time.Hour:    "2h",
	4 * time.Hour:    "4h",
	6 * time.Hour:    "6h",
	8 * time.Hour:    "8h",
	12 * time.Hour:   "12h",
	24 * time.Hour:   "1d",
}

// IntervalName time.Duration -> binance interval 字符串
func IntervalName(d time.Duration) (string, bool) {
	s, ok := intervals[d]
	return s, ok
}

// Recent 拉取最近 limit 根已收盘的 K 线（时间升序）。
// 正在构建的最后一根不返回，由实时 trade 聚合生成。
func (c *KlineClient) Recent(ctx context.Context, symbol string, interval time.Duration, limit int) ([]kline.Bar, error) {
	name, ok := IntervalName(interval)
	if !ok {
		return nil, fmt.Errorf("binance: unsupported interval %s", interval)
	}
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxKlineLimit-1 {
		limit = maxKlineLimit - 1
	}

	q := url.Values{}
	q.Set("symbol", ToBinanceSymbol(symbol))
	q.Set("interval", name)
	q.Set("limit", strconv.Itoa(limit+1))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance: klines status=%d body=%s", resp.StatusCode, truncate(body, 256))
	}
	return ParseKlines(body, symbol, interval, c.Now().UnixMilli())
}

// ParseKlines 解析 /api/v3/klines 的数组格式：
//
//	[openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, takerBuyBase, takerBuyQuote, ignore]
//
// takerBuyBase 是主动买（成交在 ask），剩余部分记为 bid。closeTime >= nowMs 的未收盘 bar 丢弃。
func ParseKlines(body []byte, symbol string, interval time.Duration, nowMs int64) ([]kline.Bar, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}

	out := make([]kline.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 11 {
			return nil, fmt.Errorf("binance: kline row %d has %d fields", i, len(row))
		}
		var (
			openTime, closeTime, trades int64
			o, h, l, cl, vol, takerBuy  string
		)
		if err := decodeAll(row,
			&openTime, &o, &h, &l, &cl, &vol, &closeTime, nil, &trades, &takerBuy); err != nil {
			return nil, fmt.Errorf("binance: kline row %d: %w", i, err)
		}
		if closeTime >= nowMs {
			continue
		}

		b := kline.Bar{
			Symbol:   symbol,
			Interval: interval,
			StartMs:  openTime,
			EndMs:    openTime + interval.Milliseconds(),
			Count:    trades,
		}
		var ok [6]bool
		b.Open, ok[0] = kline.ParseFixed(o)
		b.High, ok[1] = kline.ParseFixed(h)
		b.Low, ok[2] = kline.ParseFixed(l)
		b.Close, ok[3] = kline.ParseFixed(cl)
		b.Volume, ok[4] = kline.ParseFixed(vol)
		b.AskVolume, ok[5] = kline.ParseFixed(takerBuy)
		for _, v := range ok {
			if !v {
				return nil, fmt.Errorf("binance: kline row %d: bad decimal", i)
			}
		}
		b.BidVolume = b.Volume - b.AskVolume
		out = append(out, b)
	}
	return out, nil
}

// decodeAll 依次解码到 dst；nil 的位置跳过
func decodeAll(row []json.RawMessage, dst ...any) error {
	for i, d := range dst {
		if d == nil {
			continue
		}
		if err := json.Unmarshal(row[i], d); err != nil {
			return err
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
