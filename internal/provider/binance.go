package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog/log"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// Binance upstream error codes that matter for taxonomy mapping
const (
	binanceCodeTooManyRequests = -1003
	binanceCodeRateLimited     = -1015
	binanceCodeIllegalChars    = -1100
	binanceCodeInvalidSymbol   = -1121
)

// binanceIntervals maps native timeframes onto kline interval strings.
// 10m has no upstream interval and is served by folding 5m bars.
var binanceIntervals = map[market.Timeframe]string{
	market.TimeframeM1: "1m",
	market.TimeframeM5: "5m",
	market.TimeframeH1: "1h",
	market.TimeframeH4: "4h",
	market.TimeframeD1: "1d",
}

// binanceQuoteAssets are the pair suffixes the adapter accepts.
var binanceQuoteAssets = []string{"USDT", "USDC", "BUSD", "BTC", "ETH", "BNB"}

// BinanceConfig contains configuration for the Binance spot adapter
type BinanceConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool
}

// Binance serves crypto bars from the Binance spot klines endpoint and
// streams closed klines over the exchange websocket.
type Binance struct {
	client *binance.Client
	caps   Capabilities

	mu      sync.Mutex
	streams []*binanceStream
}

// NewBinance creates a Binance market-data adapter.
func NewBinance(cfg BinanceConfig) *Binance {
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.Testnet {
		binance.UseTestnet = true
		log.Info().Msg("Binance adapter initialized (testnet)")
	}

	native := make([]market.Timeframe, 0, len(binanceIntervals))
	for _, tf := range market.Timeframes() {
		if _, ok := binanceIntervals[tf]; ok {
			native = append(native, tf)
		}
	}

	return &Binance{
		client: client,
		caps: Capabilities{
			SupportedTimeframes:   native,
			MaxBarsPerRequest:     1000,
			NeedsAuth:             false,
			RateLimitPerSecond:    10,
			HistoricalFrom:        time.Date(2017, 8, 17, 0, 0, 0, 0, time.UTC),
			SupportsExtendedHours: true,
			SupportsRealtime:      true,
		},
	}
}

// Capabilities implements Provider.
func (b *Binance) Capabilities() Capabilities {
	return b.caps
}

// ValidateSymbol implements Provider. Binance spot pairs are uppercase
// base+quote concatenations ending in a known quote asset.
func (b *Binance) ValidateSymbol(sym market.Symbol) bool {
	if sym.Kind != market.SymbolStock {
		return false
	}
	s := sym.Canonical
	if len(s) < 5 || strings.ContainsAny(s, "./-") {
		return false
	}
	for _, quote := range binanceQuoteAssets {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return true
		}
	}
	return false
}

// GetBars implements Provider.
func (b *Binance) GetBars(ctx context.Context, q Query) ([]market.Bar, error) {
	if !b.ValidateSymbol(q.Symbol) {
		return nil, market.NewSymbolResolutionError(q.Symbol.Canonical, "")
	}

	src, ok := b.caps.SourceTimeframe(q.Timeframe)
	if !ok {
		return nil, market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("timeframe %s not supported by binance", q.Timeframe))
	}

	limit := q.Limit
	if src != q.Timeframe && limit > 0 {
		limit *= int(q.Timeframe.Duration() / src.Duration())
	}
	if limit > b.caps.MaxBarsPerRequest {
		limit = b.caps.MaxBarsPerRequest
	}

	svc := b.client.NewKlinesService().
		Symbol(q.Symbol.Canonical).
		Interval(binanceIntervals[src])
	if q.From != nil {
		svc = svc.StartTime(q.From.UTC().UnixMilli())
	}
	if q.To != nil {
		svc = svc.EndTime(q.To.UTC().UnixMilli())
	}
	if limit > 0 {
		svc = svc.Limit(limit)
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, mapBinanceError(q.Symbol.Canonical, err)
	}

	bars := convertKlines(klines)
	if src != q.Timeframe {
		bars, err = market.Aggregate(bars, src, q.Timeframe, false)
		if err != nil {
			return nil, err
		}
	}
	return normalizeBars(bars, q), nil
}

// convertKlines parses the string-typed kline payload into bars. Rows with
// unparseable numbers are skipped.
func convertKlines(klines []*binance.Kline) []market.Bar {
	bars := make([]market.Bar, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closePrice, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			log.Debug().
				Int64("open_time", k.OpenTime).
				Msg("Skipping kline with unparseable fields")
			continue
		}
		bars = append(bars, market.Bar{
			Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}
	return bars
}

// mapBinanceError folds SDK errors into the taxonomy.
func mapBinanceError(symbol string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case binanceCodeTooManyRequests, binanceCodeRateLimited:
			return market.NewRateLimitError("binance", 0)
		case binanceCodeInvalidSymbol, binanceCodeIllegalChars:
			return market.NewSymbolResolutionError(symbol, "")
		default:
			return market.NewTransportError("binance", err)
		}
	}
	return market.NewTransportError("binance", err)
}

// binanceStream tracks one websocket kline subscription.
type binanceStream struct {
	stopC chan<- struct{}
	once  sync.Once
}

func (s *binanceStream) stop() {
	s.once.Do(func() { close(s.stopC) })
}

// Subscribe implements Subscriber. Only closed klines reach the handler;
// forming bars are dropped so downstream consumers never see a bar twice.
func (b *Binance) Subscribe(ctx context.Context, sym market.Symbol, tf market.Timeframe, handler BarHandler) error {
	if !b.ValidateSymbol(sym) {
		return market.NewSymbolResolutionError(sym.Canonical, "")
	}
	interval, ok := binanceIntervals[tf]
	if !ok {
		return market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("timeframe %s cannot be streamed from binance", tf))
	}

	wsHandler := func(event *binance.WsKlineEvent) {
		if event == nil || !event.Kline.IsFinal {
			return
		}
		open, err1 := strconv.ParseFloat(event.Kline.Open, 64)
		high, err2 := strconv.ParseFloat(event.Kline.High, 64)
		low, err3 := strconv.ParseFloat(event.Kline.Low, 64)
		closePrice, err4 := strconv.ParseFloat(event.Kline.Close, 64)
		volume, err5 := strconv.ParseFloat(event.Kline.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return
		}
		handler(sym, tf, market.Bar{
			Timestamp: time.UnixMilli(event.Kline.StartTime).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}
	errHandler := func(err error) {
		log.Warn().
			Err(err).
			Str("symbol", sym.Canonical).
			Str("timeframe", tf.String()).
			Msg("Binance kline stream error")
	}

	doneC, stopC, err := binance.WsKlineServe(sym.Canonical, interval, wsHandler, errHandler)
	if err != nil {
		return market.NewTransportError("binance", err)
	}

	stream := &binanceStream{stopC: stopC}
	b.mu.Lock()
	b.streams = append(b.streams, stream)
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			stream.stop()
		case <-doneC:
		}
	}()

	return nil
}

// UnsubscribeAll implements Subscriber.
func (b *Binance) UnsubscribeAll() {
	b.mu.Lock()
	streams := b.streams
	b.streams = nil
	b.mu.Unlock()

	for _, s := range streams {
		s.stop()
	}
}
