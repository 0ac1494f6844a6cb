package session

// exchangeInfo carries per-venue metadata resolved from a symbol root:
// the IANA timezone sessions are computed in, the holiday calendar key and
// the regular-trading-hours window in exchange-local wall clock.
type exchangeInfo struct {
	TZ       string
	Calendar string
	RTHStart string
	RTHEnd   string
}

// exchanges maps symbol roots onto venue metadata. Futures month-code
// suffixes never reach this table; normalization strips them into Root.
// Unknown roots fall back to NYSE hours in America/New_York.
var exchanges = map[string]exchangeInfo{
	// CME equity index futures
	"ES":  {TZ: "America/Chicago", Calendar: "cme", RTHStart: "08:30", RTHEnd: "15:00"},
	"NQ":  {TZ: "America/Chicago", Calendar: "cme", RTHStart: "08:30", RTHEnd: "15:00"},
	"YM":  {TZ: "America/Chicago", Calendar: "cme", RTHStart: "08:30", RTHEnd: "15:00"},
	"RTY": {TZ: "America/Chicago", Calendar: "cme", RTHStart: "08:30", RTHEnd: "15:00"},

	// US equities / ETFs
	"SPY": {TZ: "America/New_York", Calendar: "nyse", RTHStart: "09:30", RTHEnd: "16:00"},
	"QQQ": {TZ: "America/New_York", Calendar: "nyse", RTHStart: "09:30", RTHEnd: "16:00"},

	// FX: London hours, no packaged holiday calendar
	"EURUSD": {TZ: "Europe/London", RTHStart: "08:00", RTHEnd: "16:30"},

	// Crypto: continuous UTC day
	"BTCUSD": {TZ: "UTC", RTHStart: "00:00", RTHEnd: "00:00"},
}

var defaultExchange = exchangeInfo{
	TZ:       "America/New_York",
	Calendar: "nyse",
	RTHStart: "09:30",
	RTHEnd:   "16:00",
}

func exchangeFor(root string) exchangeInfo {
	if info, ok := exchanges[root]; ok {
		return info
	}
	return defaultExchange
}
