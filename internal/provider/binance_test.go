package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// TestBinanceValidateSymbol tests spot pair validation
func TestBinanceValidateSymbol(t *testing.T) {
	b := NewBinance(BinanceConfig{})

	tests := []struct {
		name   string
		symbol string
		want   bool
	}{
		{"usdt pair", "BTCUSDT", true},
		{"usdc pair", "ETHUSDC", true},
		{"btc cross", "BNBBTC", true},
		{"lowercase normalizes", "solusdt", true},
		{"continuous future root", "ES", false},
		{"too short", "BTC", false},
		{"no known quote asset", "AAPL", false},
		{"quote asset alone", "USDT", false},
		{"dotted ticker", "BRK.B", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sym := market.MustNormalizeSymbol(tt.symbol)
			assert.Equal(t, tt.want, b.ValidateSymbol(sym))
		})
	}
}

// TestBinanceCapabilities tests the native interval set
func TestBinanceCapabilities(t *testing.T) {
	caps := NewBinance(BinanceConfig{}).Capabilities()

	assert.True(t, caps.Supports(market.TimeframeM1))
	assert.True(t, caps.Supports(market.TimeframeM5))
	assert.True(t, caps.Supports(market.TimeframeH1))
	assert.True(t, caps.Supports(market.TimeframeH4))
	assert.True(t, caps.Supports(market.TimeframeD1))
	assert.False(t, caps.Supports(market.TimeframeM10), "10m has no upstream interval")

	// 10m is still servable by folding the 5m feed.
	src, ok := caps.SourceTimeframe(market.TimeframeM10)
	require.True(t, ok)
	assert.Equal(t, market.TimeframeM5, src)

	assert.True(t, caps.SupportsRealtime)
	assert.Equal(t, 1000, caps.MaxBarsPerRequest)
}

// TestConvertKlines tests parsing of the string-typed kline payload
func TestConvertKlines(t *testing.T) {
	open := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	klines := []*binance.Kline{
		{
			OpenTime: open.UnixMilli(),
			Open:     "68000.10",
			High:     "68150.00",
			Low:      "67950.25",
			Close:    "68100.50",
			Volume:   "123.456",
		},
		{
			OpenTime: open.Add(time.Minute).UnixMilli(),
			Open:     "68100.50",
			High:     "68200.00",
			Low:      "68050.00",
			Close:    "68180.00",
			Volume:   "98.7",
		},
	}

	bars := convertKlines(klines)
	require.Len(t, bars, 2)

	assert.True(t, bars[0].Timestamp.Equal(open))
	assert.Equal(t, 68000.10, bars[0].Open)
	assert.Equal(t, 68150.00, bars[0].High)
	assert.Equal(t, 67950.25, bars[0].Low)
	assert.Equal(t, 68100.50, bars[0].Close)
	assert.Equal(t, 123.456, bars[0].Volume)
	assert.Equal(t, time.UTC, bars[0].Timestamp.Location())
}

// TestConvertKlinesSkipsBadRows tests that unparseable rows are dropped
// without failing the batch
func TestConvertKlinesSkipsBadRows(t *testing.T) {
	open := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	klines := []*binance.Kline{
		{OpenTime: open.UnixMilli(), Open: "100", High: "101", Low: "99", Close: "100.5", Volume: "10"},
		{OpenTime: open.Add(time.Minute).UnixMilli(), Open: "not-a-number", High: "101", Low: "99", Close: "100.5", Volume: "10"},
		{OpenTime: open.Add(2 * time.Minute).UnixMilli(), Open: "100.5", High: "102", Low: "100", Close: "101", Volume: "12"},
	}

	bars := convertKlines(klines)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Timestamp.Equal(open))
	assert.True(t, bars[1].Timestamp.Equal(open.Add(2*time.Minute)))
}

// TestMapBinanceError tests taxonomy mapping for upstream error codes
func TestMapBinanceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want market.ErrorKind
	}{
		{
			name: "too many requests",
			err:  &common.APIError{Code: -1003, Message: "Too many requests"},
			want: market.KindProviderRateLimit,
		},
		{
			name: "ip rate limited",
			err:  &common.APIError{Code: -1015, Message: "Too many new orders"},
			want: market.KindProviderRateLimit,
		},
		{
			name: "invalid symbol",
			err:  &common.APIError{Code: -1121, Message: "Invalid symbol"},
			want: market.KindSymbolResolution,
		},
		{
			name: "illegal characters",
			err:  &common.APIError{Code: -1100, Message: "Illegal characters found in parameter"},
			want: market.KindSymbolResolution,
		},
		{
			name: "other api error",
			err:  &common.APIError{Code: -2010, Message: "Account has insufficient balance"},
			want: market.KindProviderTransport,
		},
		{
			name: "plain network error",
			err:  errors.New("connection reset by peer"),
			want: market.KindProviderTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapBinanceError("BTCUSDT", tt.err)
			assert.Equal(t, tt.want, market.KindOf(mapped))
		})
	}
}

// TestMapBinanceErrorKeepsSymbol tests that resolution failures carry the
// offending symbol
func TestMapBinanceErrorKeepsSymbol(t *testing.T) {
	mapped := mapBinanceError("FAKEUSDT", &common.APIError{Code: -1121, Message: "Invalid symbol"})

	var me *market.Error
	require.True(t, errors.As(mapped, &me))
	assert.Equal(t, "FAKEUSDT", me.Data["symbol"])
}

// TestBinanceGetBarsRejectsBadSymbol tests the pre-flight symbol check
func TestBinanceGetBarsRejectsBadSymbol(t *testing.T) {
	b := NewBinance(BinanceConfig{})
	from := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	_, err := b.GetBars(context.Background(), Query{
		Symbol:    market.MustNormalizeSymbol("AAPL"),
		Timeframe: market.TimeframeM5,
		From:      &from,
		To:        &to,
	})
	require.Error(t, err)
	assert.Equal(t, market.KindSymbolResolution, market.KindOf(err))
}
