package bias

import (
	"fmt"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/session"
)

// Session names the profile decision depends on.
const (
	sessionAsia   = "asia"
	sessionLondon = "london"
)

// dayProfile classifies the day from session liquidity sweeps: a swept
// London extreme reads as a reversal day (P1), a swept Asia extreme as an
// expansion day (P2), and an untouched overnight range as continuation (P3).
// A London sweep outranks an Asia sweep when both occurred.
func dayProfile(bars []market.Bar, sessions []session.Boundary) (Profile, []SessionExtreme, []string) {
	var warnings []string
	extremes := make([]SessionExtreme, 0, len(sessions))

	byName := make(map[string]*SessionExtreme, len(sessions))
	for _, b := range sessions {
		ext, ok := sessionExtreme(bars, b)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no bars inside %s session", b.Name))
			continue
		}
		extremes = append(extremes, ext)
		byName[b.Name] = &extremes[len(extremes)-1]
	}

	profile := ProfileP3
	if asia, ok := byName[sessionAsia]; ok && (asia.SweptHigh || asia.SweptLow) {
		profile = ProfileP2
	}
	if london, ok := byName[sessionLondon]; ok && (london.SweptHigh || london.SweptLow) {
		profile = ProfileP1
	}
	return profile, extremes, warnings
}

// sessionExtreme computes a session's range and whether price beyond the
// session end traded through either side. ok=false when no bar falls inside
// the window.
func sessionExtreme(bars []market.Bar, b session.Boundary) (SessionExtreme, bool) {
	ext := SessionExtreme{Session: b.Name}
	found := false

	for _, bar := range bars {
		if !b.Within(bar.Timestamp) {
			continue
		}
		if !found {
			ext.High, ext.Low = bar.High, bar.Low
			found = true
			continue
		}
		if bar.High > ext.High {
			ext.High = bar.High
		}
		if bar.Low < ext.Low {
			ext.Low = bar.Low
		}
	}
	if !found {
		return ext, false
	}

	for _, bar := range bars {
		if bar.Timestamp.Before(b.End) {
			continue
		}
		if bar.High > ext.High {
			ext.SweptHigh = true
		}
		if bar.Low < ext.Low {
			ext.SweptLow = true
		}
	}
	return ext, true
}
