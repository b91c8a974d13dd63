// Package scheduler runs periodic maintenance jobs for the market engine.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/betarena/market-engine/internal/metrics"
)

// Ranker is the part of the betting service the scheduler drives.
type Ranker interface {
	RecomputeRanks(ctx context.Context) error
	ActiveContractCount(ctx context.Context) (int, error)
}

// jobTimeout bounds a single reconcile run.
const jobTimeout = time.Minute

// Scheduler reconciles global and tier ranks and refreshes the open
// contract gauge on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	ranker   Ranker
	schedule string
}

// New creates a scheduler for a six-field (seconds first) or standard
// five-field cron expression.
func New(ranker Ranker, schedule string) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithParser(cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		ranker:   ranker,
		schedule: schedule,
	}
}

// Start registers the reconcile job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("schedule reconcile %q: %w", s.schedule, err)
	}
	s.cron.Start()
	slog.Info("rank reconciler started", "schedule", s.schedule)
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("rank reconciler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.Reconcile(ctx); err != nil {
		slog.Error("reconcile failed", "err", err)
	}
}

// Reconcile recomputes every rank and resets the active contract gauge
// from the store. Both steps run even if the first fails.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	rankErr := s.ranker.RecomputeRanks(ctx)

	n, err := s.ranker.ActiveContractCount(ctx)
	if err != nil {
		if rankErr != nil {
			return fmt.Errorf("recompute ranks: %w; count contracts: %w", rankErr, err)
		}
		return fmt.Errorf("count contracts: %w", err)
	}
	metrics.ActiveContracts.Set(float64(n))

	if rankErr != nil {
		return fmt.Errorf("recompute ranks: %w", rankErr)
	}
	return nil
}
