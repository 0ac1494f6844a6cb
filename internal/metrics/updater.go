package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolUpdater periodically publishes pgx pool gauges. The archive is the
// only pooled resource marketd holds, so this is all the updater watches.
type PoolUpdater struct {
	pool     *pgxpool.Pool
	interval time.Duration
	stopCh   chan struct{}
}

// NewPoolUpdater creates an updater for the given pool.
func NewPoolUpdater(pool *pgxpool.Pool, interval time.Duration) *PoolUpdater {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PoolUpdater{
		pool:     pool,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the update loop until Stop or context cancellation.
func (u *PoolUpdater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update()

	for {
		select {
		case <-ticker.C:
			u.update()
		case <-u.stopCh:
			log.Debug().Msg("Pool metrics updater stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the update loop.
func (u *PoolUpdater) Stop() {
	close(u.stopCh)
}

func (u *PoolUpdater) update() {
	if u.pool == nil {
		return
	}
	stat := u.pool.Stat()
	DBPoolConnections.WithLabelValues("acquired").Set(float64(stat.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))
}
