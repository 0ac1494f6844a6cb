package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// Alert is a normalized inbound trading alert. Numeric fields arrive as JSON
// numbers or numeric strings; values that do not coerce (including NaN) are
// dropped rather than failing the whole alert.
type Alert struct {
	ID         string          `json:"alertId"`
	Symbol     string          `json:"symbol"`
	Type       string          `json:"type,omitempty"`
	Timeframe  string          `json:"timeframe,omitempty"`
	Timestamp  int64           `json:"timestamp"` // epoch milliseconds
	Price      *float64        `json:"price,omitempty"`
	Open       *float64        `json:"open,omitempty"`
	High       *float64        `json:"high,omitempty"`
	Low        *float64        `json:"low,omitempty"`
	Close      *float64        `json:"close,omitempty"`
	Volume     *float64        `json:"volume,omitempty"`
	RSI        *float64        `json:"rsi,omitempty"`
	MACD       *MACDValues     `json:"macd,omitempty"`
	Signal     string          `json:"signal,omitempty"`
	Action     string          `json:"action,omitempty"`
	Direction  string          `json:"direction,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Strength   *float64        `json:"strength,omitempty"`
	Confluence *ConfluenceHint `json:"confluence,omitempty"`
	StopLoss   *float64        `json:"stopLoss,omitempty"`
	TakeProfit *float64        `json:"takeProfit,omitempty"`
	RiskReward *float64        `json:"riskReward,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	Version    string          `json:"version,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// MACDValues carries the optional MACD block of an alert.
type MACDValues struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// ConfluenceHint is the sender's own confluence reading, passed through to
// the orchestrator untouched.
type ConfluenceHint struct {
	Score   float64   `json:"score"`
	Factors []string  `json:"factors,omitempty"`
	Levels  []float64 `json:"levels,omitempty"`
}

// supportedAlertVersion is the schema the ingest accepts. Alerts may omit
// version; when present it must share the major version and not be newer.
const supportedAlertVersion = "1.0.0"

// decodeAlertBody parses the raw payload into a field map, preserving number
// precision for later coercion.
func decodeAlertBody(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// dedupKey flattens the identity fields into `symbol|type|timeframe|secs`.
// Timestamps are bucketed to whole seconds so millisecond jitter between
// retries of the same alert still collides.
func dedupKey(raw map[string]any) string {
	sym, _ := coerceString(raw["symbol"])
	typ, _ := coerceString(raw["type"])
	tf, _ := coerceString(raw["timeframe"])
	ts, _ := coerceInt64(raw["timestamp"])
	return fmt.Sprintf("%s|%s|%s|%d", sym, typ, tf, ts/1000)
}

// normalizeAlert validates and coerces the decoded payload. Symbol is the
// only hard-required field; the legacy analysisTimestamp spelling is
// rejected outright so senders migrate to timestamp.
func normalizeAlert(raw map[string]any, receivedAt time.Time) (*Alert, error) {
	if _, ok := raw["analysisTimestamp"]; ok {
		return nil, market.NewValidationError(market.CodeInvalidFormat,
			"field analysisTimestamp is not accepted; use timestamp")
	}

	symbol, _ := coerceString(raw["symbol"])
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, market.NewValidationError(market.CodeInvalidFormat, "alert symbol is required")
	}

	alert := &Alert{
		Symbol:     symbol,
		ReceivedAt: receivedAt.UTC(),
	}
	alert.Type, _ = coerceString(raw["type"])
	alert.Timeframe, _ = coerceString(raw["timeframe"])
	alert.Signal, _ = coerceString(raw["signal"])
	alert.Action, _ = coerceString(raw["action"])
	alert.Direction, _ = coerceString(raw["direction"])
	alert.Strategy, _ = coerceString(raw["strategy"])
	alert.Version, _ = coerceString(raw["version"])

	if ts, ok := coerceInt64(raw["timestamp"]); ok && ts > 0 {
		alert.Timestamp = ts
	} else {
		alert.Timestamp = receivedAt.UnixMilli()
	}

	if id, ok := coerceString(raw["alertId"]); ok && id != "" {
		alert.ID = id
	} else {
		alert.ID = uuid.NewString()
	}

	if alert.Version != "" {
		if err := checkAlertVersion(alert.Version); err != nil {
			return nil, err
		}
	}

	alert.Price = coerceFloatPtr(raw["price"])
	alert.Open = coerceFloatPtr(raw["open"])
	alert.High = coerceFloatPtr(raw["high"])
	alert.Low = coerceFloatPtr(raw["low"])
	alert.Close = coerceFloatPtr(raw["close"])
	alert.Volume = coerceFloatPtr(raw["volume"])
	alert.RSI = coerceFloatPtr(raw["rsi"])
	alert.Confidence = coerceFloatPtr(raw["confidence"])
	alert.Strength = coerceFloatPtr(raw["strength"])
	alert.StopLoss = coerceFloatPtr(raw["stopLoss"])
	alert.TakeProfit = coerceFloatPtr(raw["takeProfit"])
	alert.RiskReward = coerceFloatPtr(raw["riskReward"])

	if macdRaw, ok := raw["macd"].(map[string]any); ok {
		macd := &MACDValues{}
		if v, ok := coerceFloat(macdRaw["line"]); ok {
			macd.Line = v
		}
		if v, ok := coerceFloat(macdRaw["signal"]); ok {
			macd.Signal = v
		}
		if v, ok := coerceFloat(macdRaw["histogram"]); ok {
			macd.Histogram = v
		}
		alert.MACD = macd
	}

	if confRaw, ok := raw["confluence"].(map[string]any); ok {
		hint := &ConfluenceHint{}
		if v, ok := coerceFloat(confRaw["score"]); ok {
			hint.Score = v
		}
		if factors, ok := confRaw["factors"].([]any); ok {
			for _, f := range factors {
				if s, ok := coerceString(f); ok {
					hint.Factors = append(hint.Factors, s)
				}
			}
		}
		if levels, ok := confRaw["levels"].([]any); ok {
			for _, l := range levels {
				if v, ok := coerceFloat(l); ok {
					hint.Levels = append(hint.Levels, v)
				}
			}
		}
		alert.Confluence = hint
	}

	return alert, nil
}

// checkAlertVersion accepts versions sharing the supported major and not
// newer than it. Bare "1" or "1.0" forms are padded before parsing.
func checkAlertVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		v, err = semver.NewVersion(version + ".0")
		if err != nil {
			return market.NewValidationError(market.CodeInvalidFormat,
				fmt.Sprintf("invalid alert version %q", version))
		}
	}
	supported := semver.MustParse(supportedAlertVersion)
	if v.Major() != supported.Major() {
		return market.NewValidationError(market.CodeInvalidFormat,
			fmt.Sprintf("alert version %s is incompatible with supported %s", version, supportedAlertVersion))
	}
	if v.GreaterThan(supported) {
		return market.NewValidationError(market.CodeInvalidFormat,
			fmt.Sprintf("alert version %s is newer than supported %s", version, supportedAlertVersion))
	}
	return nil
}

func coerceString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// coerceFloat accepts JSON numbers and numeric strings; NaN and infinities
// report not-ok so callers drop the field.
func coerceFloat(v any) (float64, bool) {
	var f float64
	var err error
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case float64:
		f = x
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func coerceFloatPtr(v any) *float64 {
	if f, ok := coerceFloat(v); ok {
		return &f
	}
	return nil
}

func coerceInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		if f, err := x.Float64(); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
		return 0, false
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
		return 0, false
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}
