package market

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SymbolKind tags the instrument variant a normalized symbol resolved to.
type SymbolKind string

const (
	SymbolStock            SymbolKind = "stock"
	SymbolContinuousFuture SymbolKind = "continuous_future"
	SymbolFutureContract   SymbolKind = "future_contract"
)

// Symbol is the canonical form of a user-supplied instrument name. Root is
// always populated (for stocks it equals the canonical ticker) so callers can
// resolve exchange metadata uniformly.
type Symbol struct {
	Canonical string     `json:"canonical"`
	Kind      SymbolKind `json:"kind"`
	Root      string     `json:"root"`
	MonthCode string     `json:"month_code,omitempty"`
	Year      int        `json:"year,omitempty"` // two-digit contract year
}

// futureContractPattern matches ROOT + month code + 2-4 digit year, e.g.
// ESZ25, CLF2024, GCM24.
var futureContractPattern = regexp.MustCompile(`^([A-Z]{1,4})(F|G|H|J|K|M|N|Q|U|V|X|Z)(\d{2,4})$`)

// symbolCharset bounds what a bare ticker may contain after uppercasing.
var symbolCharset = regexp.MustCompile(`^[A-Z0-9./\-]{1,15}$`)

// continuousRoots are the futures roots that, when given bare, denote the
// continuous front-month contract rather than a stock ticker.
var continuousRoots = map[string]struct{}{
	"ES": {}, "NQ": {}, "YM": {}, "RTY": {}, "GC": {}, "SI": {}, "HG": {},
	"CL": {}, "ZB": {}, "ZN": {}, "ZF": {}, "ZT": {}, "VX": {},
}

// contractMonths maps futures month codes onto calendar months.
var contractMonths = map[string]time.Month{
	"F": time.January, "G": time.February, "H": time.March, "J": time.April,
	"K": time.May, "M": time.June, "N": time.July, "Q": time.August,
	"U": time.September, "V": time.October, "X": time.November, "Z": time.December,
}

// NormalizeSymbol canonicalizes a raw instrument name: trims whitespace,
// uppercases, classifies futures contracts by month-code suffix, bare known
// roots as continuous futures and everything else as a stock ticker.
// Normalization is idempotent: normalizing a Canonical yields the same
// Canonical.
func NormalizeSymbol(raw string) (Symbol, error) {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return Symbol{}, NewValidationError(CodeInvalidArgs, "symbol is required")
	}
	if !symbolCharset.MatchString(upper) {
		return Symbol{}, NewValidationError(CodeInvalidFormat,
			fmt.Sprintf("symbol %q contains unsupported characters", raw))
	}

	if m := futureContractPattern.FindStringSubmatch(upper); m != nil {
		root, month, yearDigits := m[1], m[2], m[3]
		// Years arrive as 2-4 digits; canonical form keeps the last two.
		year, err := strconv.Atoi(yearDigits[len(yearDigits)-2:])
		if err != nil {
			return Symbol{}, NewValidationError(CodeInvalidFormat,
				fmt.Sprintf("symbol %q has invalid contract year", raw))
		}
		return Symbol{
			Canonical: fmt.Sprintf("%s%s%02d", root, month, year),
			Kind:      SymbolFutureContract,
			Root:      root,
			MonthCode: month,
			Year:      year,
		}, nil
	}

	if _, ok := continuousRoots[upper]; ok {
		return Symbol{Canonical: upper, Kind: SymbolContinuousFuture, Root: upper}, nil
	}

	return Symbol{Canonical: upper, Kind: SymbolStock, Root: upper}, nil
}

// MustNormalizeSymbol is NormalizeSymbol for inputs known to be valid, such
// as literals in tests and fixtures.
func MustNormalizeSymbol(raw string) Symbol {
	sym, err := NormalizeSymbol(raw)
	if err != nil {
		panic(err)
	}
	return sym
}

// ContractMonth resolves the futures month code to a calendar month.
func (s Symbol) ContractMonth() (time.Month, bool) {
	m, ok := contractMonths[s.MonthCode]
	return m, ok
}

// IsFuture reports whether the symbol denotes a futures instrument, either a
// dated contract or a continuous root.
func (s Symbol) IsFuture() bool {
	return s.Kind == SymbolContinuousFuture || s.Kind == SymbolFutureContract
}

func (s Symbol) String() string { return s.Canonical }
