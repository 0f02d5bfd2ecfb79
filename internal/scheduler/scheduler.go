// Package scheduler enqueues runs for projects whose interval elapsed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrapekit/scrapper/internal/scrape"
)

// Config holds scheduler configuration.
type Config struct {
	Tick time.Duration
}

// Scheduler periodically sweeps the registry and submits a scheduled run
// for every active project that is due and not already in flight.
type Scheduler struct {
	projects scrape.ProjectStore
	results  scrape.ResultStore
	queue    scrape.Queue
	clock    scrape.Clock
	ids      scrape.IDGenerator
	cfg      Config
	logger   *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Scheduler.
func New(
	projects scrape.ProjectStore,
	results scrape.ResultStore,
	queue scrape.Queue,
	clock scrape.Clock,
	ids scrape.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 30 * time.Second
	}
	return &Scheduler{
		projects: projects,
		results:  results,
		queue:    queue,
		clock:    clock,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start begins the sweep loop in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("scheduler started", zap.Duration("tick", s.cfg.Tick))
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	// sweep immediately on start
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep enqueues runs for all due projects and reports how many were
// submitted.
func (s *Scheduler) Sweep(ctx context.Context) int {
	projects, err := s.projects.ListProjects(ctx, 0)
	if err != nil {
		s.logger.Error("scheduler project list failed", zap.Error(err))
		return 0
	}

	submitted := 0
	for _, project := range projects {
		due, err := s.isDue(ctx, project)
		if err != nil {
			s.logger.Error("scheduler due check failed",
				zap.String("project", project.Slug), zap.Error(err))
			continue
		}
		if !due {
			continue
		}
		if err := s.submit(ctx, project); err != nil {
			s.logger.Error("scheduler submit failed",
				zap.String("project", project.Slug), zap.Error(err))
			continue
		}
		submitted++
	}
	return submitted
}

func (s *Scheduler) isDue(ctx context.Context, project scrape.Project) (bool, error) {
	if project.Status != scrape.ProjectStatusActive {
		return false, nil
	}
	// Zero interval means the project only runs on manual triggers.
	if project.IntervalSeconds <= 0 {
		return false, nil
	}
	interval := time.Duration(project.IntervalSeconds) * time.Second

	latest, err := s.results.LatestRun(ctx, project.ID)
	if errors.Is(err, scrape.ErrNotFound) {
		// Never run before.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if !latest.Status.Terminal() {
		return false, nil
	}
	return s.clock.Now().Sub(latest.Submitted) >= interval, nil
}

func (s *Scheduler) submit(ctx context.Context, project scrape.Project) error {
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	run := scrape.Run{
		ID:        id,
		ProjectID: project.ID,
		Status:    scrape.RunStatusQueued,
		Trigger:   scrape.TriggerScheduled,
		Submitted: s.clock.Now(),
	}
	if err := s.results.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	if err := s.queue.Enqueue(ctx, scrape.QueueItem{
		RunID:     run.ID,
		Project:   project,
		Trigger:   scrape.TriggerScheduled,
		Submitted: run.Submitted.Unix(),
	}); err != nil {
		// The run row stays queued; mark it failed so it is not stuck.
		if updErr := s.results.UpdateRunStatus(ctx, run.ID, scrape.RunStatusFailed,
			"enqueue failed: "+err.Error(), scrape.RunCounters{}); updErr != nil {
			s.logger.Error("orphaned run cleanup failed",
				zap.String("run_id", run.ID), zap.Error(updErr))
		}
		return fmt.Errorf("enqueue run: %w", err)
	}
	s.logger.Info("scheduled run submitted",
		zap.String("run_id", run.ID),
		zap.String("project", project.Slug),
	)
	return nil
}
