package realtime

import (
	"context"
	"time"

	"github.com/HammerMeetNail/oasis/internal/logging"
)

type activityReporter interface {
	LastActive() time.Time
}

// Sweeper closes handles whose client has been silent for longer than the
// idle timeout. Handles that do not report activity are left alone.
type Sweeper struct {
	registry    *Registry
	idleTimeout time.Duration
	interval    time.Duration
	logger      *logging.Logger
	now         func() time.Time
}

func NewSweeper(registry *Registry, idleTimeout, interval time.Duration, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		registry:    registry,
		idleTimeout: idleTimeout,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
	}
}

// Start blocks until ctx is done. A zero idle timeout disables sweeping.
func (s *Sweeper) Start(ctx context.Context) {
	if s.idleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Idle connection sweeper started", map[string]interface{}{
		"idle_timeout": s.idleTimeout.String(),
		"interval":     s.interval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one pass and returns how many handles were closed.
func (s *Sweeper) Sweep() int {
	now := s.now()
	closed := 0
	handles := s.registry.Snapshot()

	for _, h := range handles {
		reporter, ok := h.(activityReporter)
		if !ok {
			continue
		}
		idle := now.Sub(reporter.LastActive())
		if idle <= s.idleTimeout {
			continue
		}
		s.logger.Debug("Closing idle connection", map[string]interface{}{
			"user_id":   h.UserID(),
			"handle_id": h.ID(),
			"idle":      idle.String(),
		})
		s.registry.UnregisterHandle(h)
		_ = h.Close()
		closed++
	}

	if closed > 0 {
		s.logger.Info("Idle sweep completed", map[string]interface{}{
			"total":  len(handles),
			"closed": closed,
		})
	}
	return closed
}
