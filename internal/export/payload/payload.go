package payload

import (
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"tradeflow.com/internal/quotes/kline"
)

// TimeLayout 接收端按 "YYYY-MM-DD HH:MM:SS"（UTC）解析
const TimeLayout = "2006-01-02 15:04:05"

type ChartInfo struct {
	Symbol        string `json:"symbol"`
	ChartNumber   int    `json:"chart_number"`
	SecondsPerBar int    `json:"seconds_per_bar"`
}

// Record 单根 bar 的线上格式；可选字段缺省为 0，open_interest 缺省为 null，字段从不省略
type Record struct {
	Timestamp      string    `json:"timestamp"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         float64   `json:"volume"`
	BidVolume      float64   `json:"bid_volume"`
	AskVolume      float64   `json:"ask_volume"`
	NumberOfTrades int64     `json:"number_of_trades"`
	OpenInterest   *float64  `json:"open_interest"`
	ChartInfo      ChartInfo `json:"chart_info"`
	Source         string    `json:"source"`
	CollectedAt    string    `json:"collected_at"`
}

type Metadata struct {
	Source      string `json:"source"`
	CollectedAt string `json:"collected_at"`
	TotalBars   int    `json:"total_bars"`
}

type Batch struct {
	Data     []Record `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// Encoder 无状态：同样的 bar 和时钟得到同样的字节
type Encoder struct {
	ChartNumber int
	Source      string // 单条记录里的 source
	Now         func() time.Time
}

func NewEncoder(chartNumber int, source string) *Encoder {
	if source == "" {
		source = "tradeflow_collector"
	}
	return &Encoder{ChartNumber: chartNumber, Source: source, Now: time.Now}
}

func (e *Encoder) EncodeSingle(b kline.Bar) ([]byte, error) {
	return json.Marshal(e.record(b, e.collectedAt()))
}

// EncodeBatch source 写进 metadata，标明来源（batch / historical_export / manual_historical_export）
func (e *Encoder) EncodeBatch(bars []kline.Bar, source string) ([]byte, error) {
	at := e.collectedAt()
	out := Batch{
		Data:     make([]Record, 0, len(bars)),
		Metadata: Metadata{Source: source, CollectedAt: at, TotalBars: len(bars)},
	}
	for _, b := range bars {
		out.Data = append(out.Data, e.record(b, at))
	}
	return json.Marshal(out)
}

func (e *Encoder) record(b kline.Bar, collectedAt string) Record {
	r := Record{
		Timestamp:      b.Time().UTC().Format(TimeLayout),
		Open:           fixed(b.Open),
		High:           fixed(b.High),
		Low:            fixed(b.Low),
		Close:          fixed(b.Close),
		Volume:         fixed(b.Volume),
		BidVolume:      fixed(b.BidVolume),
		AskVolume:      fixed(b.AskVolume),
		NumberOfTrades: b.Count,
		ChartInfo: ChartInfo{
			Symbol:        b.Symbol,
			ChartNumber:   e.ChartNumber,
			SecondsPerBar: int(b.Interval / time.Second),
		},
		Source:      e.Source,
		CollectedAt: collectedAt,
	}
	if b.OpenInterest != 0 {
		oi := fixed(b.OpenInterest)
		r.OpenInterest = &oi
	}
	return r
}

func (e *Encoder) collectedAt() string {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().UTC().Format(TimeLayout)
}

// fixed 定点数（1e8）-> float64，经 decimal 避免二进制除法误差
func fixed(v int64) float64 {
	return decimal.New(v, -8).InexactFloat64()
}
