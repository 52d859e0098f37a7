// Package scheduler implements the Reconciliation Scheduler (C9): a
// fixed-interval tick that drives every non-terminal deployment forward
// and sweeps old terminal records into the archive, built on a
// DurationJob rather than a calendar job since TICK_SECS is a fixed
// interval, not a crontab schedule.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"factory/internal/apperrors"
	"factory/internal/deployment"
	"factory/internal/store"
)

// Scheduler periodically reconciles deployment state.
type Scheduler struct {
	store      store.Store
	machine    *deployment.Machine
	sched      gocron.Scheduler
	tick       time.Duration
	maxPerTick int
	retention  time.Duration
	maxRecords int
	logger     *logrus.Logger
}

// New creates a Scheduler. Call Start to begin ticking.
func New(
	s store.Store,
	machine *deployment.Machine,
	tick time.Duration,
	maxPerTick int,
	retention time.Duration,
	maxRecords int,
	logger *logrus.Logger,
) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		store:      s,
		machine:    machine,
		sched:      sched,
		tick:       tick,
		maxPerTick: maxPerTick,
		retention:  retention,
		maxRecords: maxRecords,
		logger:     logger,
	}, nil
}

// Start registers the reconciliation job and begins ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(s.tick),
		gocron.NewTask(func() { s.runTick(ctx) }),
	)
	if err != nil {
		return err
	}
	s.sched.Start()
	s.logger.Infof("Reconciliation scheduler started, tick=%s max_per_tick=%d", s.tick, s.maxPerTick)
	return nil
}

// Stop drains in-flight jobs and halts the scheduler.
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

// ResetTimers zeroes the persisted tick cursor (admin op). runTick
// neither reads nor writes the cursor, so a reset does not change which
// deployments the next tick scans or advances.
func (s *Scheduler) ResetTimers(ctx context.Context) error {
	if err := s.store.SetTickCursor(ctx, 0); err != nil {
		return err
	}
	s.logger.Info("Reconciliation scheduler timers reset")
	return nil
}

func (s *Scheduler) runTick(ctx context.Context) {
	active, err := s.store.ScanActiveDeployments(ctx, s.maxPerTick)
	if err != nil {
		s.logger.Errorf("Reconciliation scan failed: %v", err)
		return
	}

	for _, rec := range active {
		if err := s.machine.Advance(ctx, rec.ID); err != nil {
			if errors.Is(err, apperrors.ErrDeploymentLocked) {
				continue // another caller is already advancing this record
			}
			s.logger.Warnf("Reconciliation advance failed for %s: %v", rec.ID, err)
		}
	}

	cutoff := time.Now().Add(-s.retention).Unix()
	archived, err := s.store.ArchiveOldDeployments(ctx, cutoff, s.maxRecords)
	if err != nil {
		s.logger.Errorf("Archive sweep failed: %v", err)
		return
	}
	if archived > 0 {
		s.logger.Infof("Archived %d deployment records", archived)
	}
}
