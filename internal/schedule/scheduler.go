package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/atworkflow/engine/internal/compiler"
	"github.com/atworkflow/engine/internal/cronexpr"
	"github.com/atworkflow/engine/internal/engine"
)

// ScheduledWorkflow is one workflow registered against the scheduled
// trigger: graph is the compiled workflow whose trigger node carries
// cron_expression/timezone config, validated at compile time via
// ValidateExpression.
type ScheduledWorkflow struct {
	WorkflowID     string
	CronExpression string
	Graph          *compiler.ExecutionGraph
}

// Scheduler is the periodic ticker behind the scheduled trigger: an
// in-memory registry of compiled workflows, each fired through the
// Execution Engine whenever its cron expression comes due.
type Scheduler struct {
	engine *engine.Engine
	logger *slog.Logger

	checkInterval time.Duration

	mu       sync.Mutex
	entries  map[string]*ScheduledWorkflow
	nextRun  map[string]time.Time
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	nowFn    func() time.Time
}

// NewScheduler builds a Scheduler that ticks every checkInterval and fires
// workflows through eng.
func NewScheduler(eng *engine.Engine, logger *slog.Logger, checkInterval time.Duration) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	return &Scheduler{
		engine:        eng,
		logger:        logger,
		checkInterval: checkInterval,
		entries:       make(map[string]*ScheduledWorkflow),
		nextRun:       make(map[string]time.Time),
		stopCh:        make(chan struct{}),
		nowFn:         time.Now,
	}
}

// Register adds or replaces a scheduled workflow and computes its initial
// next-run time relative to now.
func (s *Scheduler) Register(sw *ScheduledWorkflow) error {
	next, err := cronexpr.Next(sw.CronExpression, s.nowFn())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sw.WorkflowID] = sw
	s.nextRun[sw.WorkflowID] = next
	return nil
}

// Unregister removes a workflow from the schedule.
func (s *Scheduler) Unregister(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, workflowID)
	delete(s.nextRun, workflowID)
}

// Start begins the ticker loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started", "check_interval", s.checkInterval)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the ticker loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.checkDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkDue(ctx)
		}
	}
}

// checkDue fires every workflow whose next-run time has passed, then
// advances its next-run time from the tick that fired it.
func (s *Scheduler) checkDue(ctx context.Context) {
	now := s.nowFn()

	s.mu.Lock()
	var due []*ScheduledWorkflow
	for id, sw := range s.entries {
		if !now.Before(s.nextRun[id]) {
			due = append(due, sw)
		}
	}
	s.mu.Unlock()

	for _, sw := range due {
		s.fire(ctx, sw, now)

		next, err := cronexpr.Next(sw.CronExpression, now)
		if err != nil {
			s.logger.Error("failed to compute next run", "workflow_id", sw.WorkflowID, "error", err)
			continue
		}
		s.mu.Lock()
		s.nextRun[sw.WorkflowID] = next
		s.mu.Unlock()
	}
}

// fire synthesizes the scheduled trigger's output payload and invokes the
// Execution Engine.
func (s *Scheduler) fire(ctx context.Context, sw *ScheduledWorkflow, firedAt time.Time) {
	payload := map[string]interface{}{
		"scheduled_at":    firedAt.UTC().Format(time.RFC3339),
		"cron_expression": sw.CronExpression,
	}

	result, err := s.engine.Execute(ctx, sw.Graph, payload, nil, engine.Options{EnableRetries: true})
	if err != nil {
		s.logger.Error("scheduled execution failed to start", "workflow_id", sw.WorkflowID, "error", err)
		return
	}
	s.logger.Info("scheduled execution finished",
		"workflow_id", sw.WorkflowID, "execution_id", result.ExecutionID, "state", result.State,
	)
}
