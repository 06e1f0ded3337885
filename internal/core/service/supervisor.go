package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/order-realtime/internal/metrics"
	"github.com/rl1809/order-realtime/internal/port"
)

// Supervisor keeps a watcher running. Every run gets a freshly opened event
// source, and a failed run is retried with exponential backoff.
type Supervisor struct {
	open       port.EventSourceFactory
	health     port.HealthReporter
	backoff    time.Duration
	maxBackoff time.Duration
	metrics    *metrics.Registry
}

// NewSupervisor builds a supervisor. health may be nil.
func NewSupervisor(open port.EventSourceFactory, health port.HealthReporter, backoff, maxBackoff time.Duration, m *metrics.Registry) *Supervisor {
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	if maxBackoff < backoff {
		maxBackoff = backoff
	}
	return &Supervisor{
		open:       open,
		health:     health,
		backoff:    backoff,
		maxBackoff: maxBackoff,
		metrics:    m,
	}
}

// Run blocks until ctx is done.
func (s *Supervisor) Run(ctx context.Context, w Watcher) {
	logger := log.With().Str("watcher", w.Name()).Logger()
	delay := s.backoff

	for {
		src, err := s.open(w.Name())
		if err != nil {
			logger.Error().Err(err).Dur("retry_in", delay).Msg("open event source failed")
			s.report(w.Name(), false)
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = s.next(delay)
			continue
		}

		s.report(w.Name(), true)
		started := time.Now()
		err = w.Run(ctx, src)
		if cerr := src.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("close event source failed")
		}
		s.report(w.Name(), false)

		if ctx.Err() != nil {
			logger.Info().Msg("watcher stopped")
			return
		}

		// A run that stayed up longer than the longest backoff counts as healthy.
		if time.Since(started) > s.maxBackoff {
			delay = s.backoff
		}
		s.metrics.WatcherRestarts.WithLabelValues(w.Name()).Inc()
		logger.Error().Err(err).Dur("retry_in", delay).Msg("watcher stopped, restarting")
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = s.next(delay)
	}
}

func (s *Supervisor) next(d time.Duration) time.Duration {
	d *= 2
	if d > s.maxBackoff {
		return s.maxBackoff
	}
	return d
}

func (s *Supervisor) report(component string, serving bool) {
	if s.health != nil {
		s.health.SetServing(component, serving)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
