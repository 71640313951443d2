package model

type Side uint8

const (
	SideUnknown Side = iota + 1
	SideBuy          // maker is buyer
	SideSell         // maker is seller
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Trade: 统一后的成交模型，price/size 保持十进制字符串，进聚合器时再转定点数
//
// MakerSide 表示挂单方(maker)的方向：
// - Coinbase market_trades: side 就是 maker side
// - Binance aggTrade: m=true 表示 buyer 是 maker => MakerSide=BUY
type Trade struct {
	Src    string // "coinbase" | "binance"
	Symbol string // 统一成 "BASE-QUOTE"（例如 BTC-USD / BTC-USDT）
	Base   string
	Quote  string

	PriceStr string
	SizeStr  string

	MakerSide Side
	TsUnixMs  int64
	TradeID   string
}
