package scheduler

import (
	"context"
	"fmt"
	"time"

	"ms-passbot/internal/logger"
	"ms-passbot/internal/registration"
)

type reconciler interface {
	Reconcile(ctx context.Context) (registration.ReconcileReport, error)
}

// Scheduler runs the reservation reconciler on a fixed interval.
type Scheduler struct {
	reconciler reconciler
	interval   time.Duration
	log        *logger.Logger
}

func New(r reconciler, interval time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{reconciler: r, interval: interval, log: log}
}

// Start blocks until ctx is done. The first run happens right away so that
// reservations left by a previous process are settled at startup.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("SCHEDULER", fmt.Sprintf("started, interval %s", s.interval))
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("SCHEDULER", "stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.reconciler.Reconcile(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("SCHEDULER", fmt.Sprintf("reconcile: %v", err))
	}
}
