package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/pawmatch/internal/observability"
)

// RunPoolMonitor samples pool statistics into Prometheus every interval until
// ctx is cancelled. Run it in its own goroutine.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last poolCounters
	for {
		last = recordPoolStats(pool.Stat(), last)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poolCounters holds the cumulative pgxpool counters seen at the last sample,
// so Prometheus counters only receive the delta.
type poolCounters struct {
	acquires      int64
	emptyAcquires int64
}

// statSource is the subset of *pgxpool.Stat the monitor reads.
type statSource interface {
	TotalConns() int32
	IdleConns() int32
	AcquiredConns() int32
	MaxConns() int32
	AcquireCount() int64
	EmptyAcquireCount() int64
}

func recordPoolStats(stat statSource, last poolCounters) poolCounters {
	observability.DBPoolConnections.WithLabelValues("total").Set(float64(stat.TotalConns()))
	observability.DBPoolConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
	observability.DBPoolConnections.WithLabelValues("in_use").Set(float64(stat.AcquiredConns()))
	observability.DBPoolConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))

	current := poolCounters{acquires: stat.AcquireCount(), emptyAcquires: stat.EmptyAcquireCount()}
	if d := current.acquires - last.acquires; d > 0 {
		observability.DBPoolAcquireCount.Add(float64(d))
	}
	if d := current.emptyAcquires - last.emptyAcquires; d > 0 {
		observability.DBPoolEmptyAcquireCount.Add(float64(d))
	}
	return current
}
