// Package appctx wires the server's shared dependencies into a single
// handle: the database pool, the session controller, the rate limiter,
// and the metrics registry, plus the background sweepers that keep the
// session controller and rate limiter's in-memory state bounded.
package appctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/idropr/core/internal/config"
	"github.com/idropr/core/internal/metrics"
	"github.com/idropr/core/internal/ratelimit"
	"github.com/idropr/core/internal/repository"
	"github.com/idropr/core/internal/sessionctl"
)

const (
	sessionSweepInterval   = 1 * time.Minute
	ratelimitSweepInterval = 30 * time.Second
	statsSampleInterval    = 15 * time.Second
)

// State holds every dependency a request handler or background task needs.
type State struct {
	Config   config.Config
	DB       repository.DB
	Sessions *sessionctl.Controller
	Limiter  *ratelimit.Limiter
	Metrics  *metrics.Metrics
	Log      *slog.Logger

	pool     *pgxpool.Pool
	stopOnce chan struct{}
}

// New connects to Postgres, builds the session controller and rate
// limiter sized from cfg, and starts the sweeper and pool-stats
// goroutines. Call Close on shutdown to stop the goroutines and close
// the pool.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*State, error) {
	if log == nil {
		log = slog.Default()
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("appctx: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("appctx: ping postgres: %w", err)
	}

	sessions, err := sessionctl.New(cfg.SessionsInitialCapacity, cfg.ServerThreads, time.Now)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("appctx: build session controller: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		InitialCapacity: cfg.LimiterInitialCapacity,
		BucketCapacity:  cfg.LimiterTokensPerBucket,
		InitialTokens:   cfg.LimiterInitialTokensPerBucket,
		RefillRate:      cfg.LimiterRefillRate,
		Threads:         cfg.ServerThreads,
		Now:             time.Now,
	})

	m := metrics.New()
	metrics.RegisterPoolMetrics(m.Registry, pool)

	st := &State{
		Config:   cfg,
		DB:       repository.NewPostgresDB(pool),
		Sessions: sessions,
		Limiter:  limiter,
		Metrics:  m,
		Log:      log,
		pool:     pool,
		stopOnce: make(chan struct{}),
	}

	go sessions.Watch(sessionSweepInterval, st.stopOnce, func(removed int) {
		m.IncSessionsSwept(float64(removed))
	})
	go limiter.Watch(ratelimitSweepInterval, st.stopOnce)
	go st.sampleStats(st.stopOnce)

	return st, nil
}

// sampleStats periodically reports gauge-shaped state (active session
// count, active bucket count) that has no natural "on change" hook.
func (s *State) sampleStats(stop <-chan struct{}) {
	ticker := time.NewTicker(statsSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Metrics.SetSessionsActive(float64(s.Sessions.Count()))
			s.Metrics.SetRateLimitBucketsActive(float64(s.Limiter.BucketCount()))
			stat := s.pool.Stat()
			s.Metrics.SetDBPoolStats(metrics.DBPoolStats{
				Acquired: float64(stat.AcquiredConns()),
				Idle:     float64(stat.IdleConns()),
				Total:    float64(stat.TotalConns()),
			})
		}
	}
}

// Close stops the background goroutines and closes the database pool.
func (s *State) Close() error {
	select {
	case <-s.stopOnce:
		return errors.New("appctx: already closed")
	default:
		close(s.stopOnce)
	}
	s.pool.Close()
	return nil
}
