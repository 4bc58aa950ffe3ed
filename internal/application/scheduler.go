package application

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/davarch/ci-wiki-sync/internal/domain"
	"go.uber.org/zap"
)

// Scheduler polls every target in turn. Targets are never polled in
// parallel, so a process writes at most one page at a time.
type Scheduler struct {
	log       *zap.Logger
	use       *PollUseCase
	every     time.Duration
	pauseFile string

	mu      sync.RWMutex
	targets []domain.Target
}

func NewScheduler(l *zap.Logger, u *PollUseCase, targets []domain.Target, every time.Duration, pauseFile string) *Scheduler {
	return &Scheduler{
		log: l, use: u, targets: targets, every: every, pauseFile: pauseFile,
	}
}

func (s *Scheduler) UpdateTargets(targets []domain.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = targets
	s.log.Info("config reloaded", zap.Int("targets", len(targets)))
}

func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.every)
	defer t.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.isPaused() {
		s.log.Debug("paused: skipping poll")
		return
	}
	s.runAll(ctx)
}

func (s *Scheduler) isPaused() bool {
	if s.pauseFile == "" {
		return false
	}
	_, err := os.Stat(s.pauseFile)
	return err == nil
}

func (s *Scheduler) runAll(ctx context.Context) {
	s.mu.RLock()
	targets := make([]domain.Target, len(s.targets))
	copy(targets, s.targets)
	s.mu.RUnlock()

	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.use.PollOnce(ctx, t); err != nil {
			s.log.Warn("poll failed",
				zap.String("project", t.ProjectID),
				zap.String("ref", t.Ref),
				zap.String("page", t.PageID),
				zap.Error(err),
			)
		}
	}
}
