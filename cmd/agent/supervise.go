package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRestartDelay    = time.Second
	defaultMaxRestartDelay = time.Minute
)

// supervisor restarts a failing runner with exponential backoff until ctx is done.
type supervisor struct {
	minDelay time.Duration
	maxDelay time.Duration
	logger   zerolog.Logger
}

func newSupervisor(logger zerolog.Logger) supervisor {
	return supervisor{minDelay: defaultRestartDelay, maxDelay: defaultMaxRestartDelay, logger: logger}
}

// run starts r and restarts it after every error. A nil return ends supervision.
// A run that lasted longer than maxDelay resets the backoff.
func (s supervisor) run(ctx context.Context, name string, r runner) error {
	delay := s.minDelay
	for {
		start := time.Now()
		err := r(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		if time.Since(start) > s.maxDelay {
			delay = s.minDelay
		}

		s.logger.Error().Err(err).Str("activity", name).Dur("retry_in", delay).Msg("activity failed, restarting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, s.maxDelay)
	}
}

// superviseAll runs every runner under its own supervisor. A failure in one never
// cancels the others; the call returns once all of them have stopped.
func (s supervisor) superviseAll(ctx context.Context, runners map[string]runner) error {
	var g errgroup.Group
	for name, r := range runners {
		g.Go(func() error { return s.run(ctx, name, r) })
	}
	return g.Wait()
}
