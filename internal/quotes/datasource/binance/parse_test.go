package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradeflow.com/internal/quotes/datasource/model"
)

func TestBinance_ParseAggTradeCombined(t *testing.T) {
	msg := []byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","E":1700000000100,"s":"BTCUSDT","a":12345,"p":"37000.10","q":"0.002","f":1,"l":2,"T":1700000000000,"m":true,"M":true}}`)

	tr, err := ParseBinanceAggTradeCombined(msg)
	require.NoError(t, err)
	assert.Equal(t, "BTC-USDT", tr.Symbol)
	assert.Equal(t, "binance", tr.Src)
	assert.Equal(t, "37000.10", tr.PriceStr)
	assert.Equal(t, model.SideBuy, tr.MakerSide)
	assert.Equal(t, int64(1700000000000), tr.TsUnixMs)
	assert.Equal(t, "12345", tr.TradeID)
}

func TestBinance_ParseRejects(t *testing.T) {
	_, err := ParseBinanceAggTradeCombined([]byte(`{"stream":"x","data":{"e":"trade","s":"BTCUSDT"}}`))
	assert.ErrorIs(t, err, ErrNotAggTrade)

	_, err = ParseBinanceAggTradeCombined([]byte(`{"stream":"x","data":{"e":"aggTrade","s":"XYZ"}}`))
	assert.Error(t, err)
}

func TestBinance_Symbols(t *testing.T) {
	assert.Equal(t, "BTCUSDT", ToBinanceSymbol("btc-usdt"))
	base, quote, ok := splitBinanceSymbol("ethfdusd")
	require.True(t, ok)
	assert.Equal(t, "ETH", base)
	assert.Equal(t, "FDUSD", quote)
}
