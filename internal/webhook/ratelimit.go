package webhook

import (
	"sync"
	"time"
)

// RateLimitConfig bounds alerts per source IP over sliding windows. Zero
// disables the corresponding window.
type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	PerHour   int `mapstructure:"per_hour"`
}

// rateLimiter tracks request timestamps per IP. Entries older than an hour
// are swept on each access, so the map stays bounded by active traffic.
type rateLimiter struct {
	mu   sync.Mutex
	cfg  RateLimitConfig
	hits map[string][]time.Time
	now  func() time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		cfg:  cfg,
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// Allow records the request when it fits both windows. When rejected, retry
// reports how long until the binding window frees a slot.
func (rl *rateLimiter) Allow(ip string) (allowed bool, retry time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	hourAgo := now.Add(-time.Hour)

	kept := rl.hits[ip][:0]
	for _, ts := range rl.hits[ip] {
		if ts.After(hourAgo) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(rl.hits, ip)
	} else {
		rl.hits[ip] = kept
	}

	if rl.cfg.PerMinute > 0 {
		minuteAgo := now.Add(-time.Minute)
		count := 0
		var oldest time.Time
		for _, ts := range kept {
			if ts.After(minuteAgo) {
				if count == 0 {
					oldest = ts
				}
				count++
			}
		}
		if count >= rl.cfg.PerMinute {
			return false, oldest.Add(time.Minute).Sub(now)
		}
	}
	if rl.cfg.PerHour > 0 && len(kept) >= rl.cfg.PerHour {
		return false, kept[0].Add(time.Hour).Sub(now)
	}

	rl.hits[ip] = append(kept, now)
	return true, 0
}
