package app

import (
	"context"
	"log/slog"
	"time"

	"portal/internal/lib/logger/sl"
)

type SessionSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Sweeper deletes expired sessions on a fixed interval.
type Sweeper struct {
	log      *slog.Logger
	sessions SessionSweeper
	interval time.Duration
	timeout  time.Duration
}

func NewSweeper(log *slog.Logger, sessions SessionSweeper, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{
		log:      log,
		sessions: sessions,
		interval: interval,
		timeout:  timeout,
	}
}

// Run blocks until ctx is done. It returns at once if the interval is not positive.
func (s *Sweeper) Run(ctx context.Context) {
	const op = "app.Sweeper.Run"

	if s.interval <= 0 {
		return
	}

	log := s.log.With(slog.String("op", op))
	log.Info("sweeper started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx, log)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context, log *slog.Logger) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	n, err := s.sessions.Sweep(ctx)
	if err != nil {
		log.Error("sweep failed", sl.Err(err))
		return
	}

	if n > 0 {
		log.Info("expired sessions removed", slog.Int64("count", n))
	}
}
