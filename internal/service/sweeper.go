package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper runs MediaService.Sweep on a cron schedule.
type Sweeper struct {
	media    *MediaService
	schedule string
	logger   *zap.Logger

	mu      sync.Mutex
	sched   *cron.Cron
	running saveGuard
}

const sweepJobID = "media-sweep"

// NewSweeper validates schedule (standard five-field expression or a descriptor
// such as @daily) and returns a stopped sweeper.
func NewSweeper(media *MediaService, schedule string) (*Sweeper, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", schedule, err)
	}
	return &Sweeper{media: media, schedule: schedule, logger: media.logger.Named("sweeper")}, nil
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	s.sched = c
	s.logger.Info("sweeper scheduled", zap.String("schedule", s.schedule))
	return nil
}

// RunOnce sweeps now unless a sweep is already running. It reports whether
// a sweep ran.
func (s *Sweeper) RunOnce(ctx context.Context) bool {
	if !s.running.TryLock(sweepJobID) {
		s.logger.Debug("sweep already running")
		return false
	}
	defer s.running.Unlock(sweepJobID)

	start := time.Now()
	res, err := s.media.Sweep(ctx)
	if err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
		return true
	}
	s.logger.Debug("sweep done", zap.Int("removed", len(res.Removed)), zap.Duration("took", time.Since(start)))
	return true
}

// Stop unschedules the sweep and waits for a running one to finish or ctx
// to end.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.sched
	s.sched = nil
	s.mu.Unlock()
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.running.WaitAll(ctx)
}
