package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = time.Minute

// Sweep drops sessions idle for longer than IdleTTL and returns their user
// IDs. It is a no-op when IdleTTL is zero.
func (s *Store) Sweep() []string {
	if s.opts.IdleTTL <= 0 {
		return nil
	}
	cutoff := s.opts.Now().Add(-s.opts.IdleTTL)
	var expired []string
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.LastActive.Before(cutoff) {
			delete(s.sessions, id)
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()
	s.notifyEvicted(expired, "idle")
	return expired
}

// RunSweeper sweeps every interval until ctx is done. It always returns
// nil so it can run inside an errgroup.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.log.Info("sweeper started", zap.Duration("interval", interval), zap.Duration("ttl", s.opts.IdleTTL))
	for {
		select {
		case <-ticker.C:
			if n := len(s.Sweep()); n > 0 {
				s.log.Info("sweeper removed idle sessions", zap.Int("count", n))
			}
		case <-ctx.Done():
			s.log.Info("sweeper shutting down", zap.Error(ctx.Err()))
			return nil
		}
	}
}

// StartSweeper runs RunSweeper in a goroutine. The returned channel is
// closed once it has stopped.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.RunSweeper(ctx, interval)
	}()
	return done
}
