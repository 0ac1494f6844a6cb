// Package session computes holiday- and DST-aware trading session boundaries
// for a symbol's exchange. Windows are configured as exchange-local wall
// clock and resolved to absolute UTC instants per date.
package session

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// Boundary is a named half-open session window [Start, End) in UTC.
type Boundary struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Within reports whether ts falls inside the half-open window.
func (b Boundary) Within(ts time.Time) bool {
	return !ts.Before(b.Start) && ts.Before(b.End)
}

// Duration is the absolute length of the window.
func (b Boundary) Duration() time.Duration { return b.End.Sub(b.Start) }

// Window is a configured session in exchange-local wall clock. An End at or
// before Start denotes a session crossing midnight.
type Window struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Start string `mapstructure:"start" yaml:"start"`
	End   string `mapstructure:"end" yaml:"end"`
}

// Config controls session computation. ExchangeOverrides maps a symbol root
// onto an IANA timezone, replacing the packaged venue default.
type Config struct {
	Windows           []Window          `mapstructure:"windows"`
	ExchangeOverrides map[string]string `mapstructure:"exchange_overrides"`
}

// DefaultConfig returns the standard three-session split (asia, london,
// newyork) in exchange-local time.
func DefaultConfig() Config {
	return Config{
		Windows: []Window{
			{Name: "asia", Start: "18:00", End: "02:00"},
			{Name: "london", Start: "02:00", End: "08:30"},
			{Name: "newyork", Start: "08:30", End: "16:00"},
		},
	}
}

// Calendar resolves session boundaries, RTH windows and holidays. It is
// immutable after construction and safe for concurrent use.
type Calendar struct {
	cfg       Config
	holidays  map[string]holidaySet
	locations map[string]*time.Location
}

// NewCalendar validates the configured windows, parses the packaged holiday
// data and preloads every referenced timezone.
func NewCalendar(cfg Config) (*Calendar, error) {
	if len(cfg.Windows) == 0 {
		cfg.Windows = DefaultConfig().Windows
	}
	for _, w := range cfg.Windows {
		if w.Name == "" {
			return nil, market.NewConfigurationError("session window requires a name")
		}
		if _, _, err := parseWallClock(w.Start); err != nil {
			return nil, market.NewConfigurationError(
				fmt.Sprintf("session %s start: %v", w.Name, err))
		}
		if _, _, err := parseWallClock(w.End); err != nil {
			return nil, market.NewConfigurationError(
				fmt.Sprintf("session %s end: %v", w.Name, err))
		}
	}

	holidays, err := loadHolidays()
	if err != nil {
		return nil, market.NewConfigurationError(err.Error())
	}

	locations := make(map[string]*time.Location)
	loadTZ := func(tz string) error {
		if _, ok := locations[tz]; ok {
			return nil
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return market.NewConfigurationError(
				fmt.Sprintf("unknown timezone %q", tz)).WithCause(err)
		}
		locations[tz] = loc
		return nil
	}
	for _, info := range exchanges {
		if err := loadTZ(info.TZ); err != nil {
			return nil, err
		}
	}
	if err := loadTZ(defaultExchange.TZ); err != nil {
		return nil, err
	}
	for root, tz := range cfg.ExchangeOverrides {
		if err := loadTZ(tz); err != nil {
			return nil, fmt.Errorf("exchange override %s: %w", root, err)
		}
	}

	return &Calendar{cfg: cfg, holidays: holidays, locations: locations}, nil
}

// BoundariesFor materializes the configured session windows for a civil date
// (YYYY-MM-DD) in the symbol's exchange timezone, resolved to UTC and sorted
// by start. Windows whose end is at or before their start cross midnight
// into the following day.
func (c *Calendar) BoundariesFor(date string, sym market.Symbol) ([]Boundary, error) {
	day, loc, err := c.localDate(date, sym)
	if err != nil {
		return nil, err
	}

	boundaries := make([]Boundary, 0, len(c.cfg.Windows))
	for _, w := range c.cfg.Windows {
		b, err := materialize(w.Name, w.Start, w.End, day, loc)
		if err != nil {
			return nil, err
		}
		boundaries = append(boundaries, b)
	}
	sort.Slice(boundaries, func(i, j int) bool {
		return boundaries[i].Start.Before(boundaries[j].Start)
	})
	return boundaries, nil
}

// IsHoliday reports whether the symbol's exchange is fully closed on the
// civil date. Early-close days are trading days and return false.
func (c *Calendar) IsHoliday(date string, sym market.Symbol) bool {
	info := c.exchangeInfo(sym)
	set, ok := c.holidays[info.Calendar]
	if !ok {
		return false
	}
	_, closed := set.full[date]
	return closed
}

// EarlyClose returns the shortened closing wall clock for the date, if the
// symbol's exchange closes early.
func (c *Calendar) EarlyClose(date string, sym market.Symbol) (string, bool) {
	info := c.exchangeInfo(sym)
	set, ok := c.holidays[info.Calendar]
	if !ok {
		return "", false
	}
	closeAt, ok := set.early[date]
	return closeAt, ok
}

// RTHWindow resolves the regular-trading-hours window for the date,
// shortened on early-close days.
func (c *Calendar) RTHWindow(date string, sym market.Symbol) (Boundary, error) {
	day, loc, err := c.localDate(date, sym)
	if err != nil {
		return Boundary{}, err
	}
	info := c.exchangeInfo(sym)

	end := info.RTHEnd
	if closeAt, ok := c.EarlyClose(date, sym); ok {
		end = closeAt
	}
	return materialize("rth", info.RTHStart, end, day, loc)
}

// exchangeInfo resolves venue metadata for the symbol root, honoring
// configured timezone overrides.
func (c *Calendar) exchangeInfo(sym market.Symbol) exchangeInfo {
	info := exchangeFor(sym.Root)
	if tz, ok := c.cfg.ExchangeOverrides[sym.Root]; ok {
		info.TZ = tz
	}
	return info
}

// localDate parses a YYYY-MM-DD civil date and returns it anchored at
// midnight in the symbol's exchange timezone.
func (c *Calendar) localDate(date string, sym market.Symbol) (time.Time, *time.Location, error) {
	parsed, err := parseCivilDate(date)
	if err != nil {
		return time.Time{}, nil, err
	}
	info := c.exchangeInfo(sym)
	loc, ok := c.locations[info.TZ]
	if !ok {
		// Overrides are preloaded in NewCalendar; this covers direct struct use.
		loc, err = time.LoadLocation(info.TZ)
		if err != nil {
			return time.Time{}, nil, market.NewConfigurationError(
				fmt.Sprintf("unknown timezone %q", info.TZ)).WithCause(err)
		}
	}
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, loc), loc, nil
}

// materialize builds a UTC boundary from wall-clock times on the given local
// day. DST shifts are absorbed by computing in the exchange location first.
func materialize(name, start, end string, day time.Time, loc *time.Location) (Boundary, error) {
	sh, sm, err := parseWallClock(start)
	if err != nil {
		return Boundary{}, market.NewConfigurationError(
			fmt.Sprintf("session %s start: %v", name, err))
	}
	eh, em, err := parseWallClock(end)
	if err != nil {
		return Boundary{}, market.NewConfigurationError(
			fmt.Sprintf("session %s end: %v", name, err))
	}

	startLocal := time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, loc)
	endLocal := time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, loc)
	if !endLocal.After(startLocal) {
		endLocal = endLocal.AddDate(0, 0, 1)
	}
	return Boundary{Name: name, Start: startLocal.UTC(), End: endLocal.UTC()}, nil
}

func parseCivilDate(date string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("invalid date %q, want YYYY-MM-DD", date))
	}
	return parsed, nil
}

// parseWallClock parses "HH:MM" into hour and minute.
func parseWallClock(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid wall clock %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
