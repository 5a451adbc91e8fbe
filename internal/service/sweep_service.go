package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/kanban-service/internal/events"
	"github.com/spec-kit/kanban-service/internal/observability"
	"github.com/spec-kit/kanban-service/internal/repository"
)

// SweepResult summarizes one sweeper run.
type SweepResult struct {
	Processed int
	Failed    int
}

// SweepService drives expired tickets through the automation engine. A sweep
// never returns an error: per-ticket failures are counted and logged, and a
// failing ticket does not abort the rest of the batch.
type SweepService struct {
	tickets    repository.TicketRepository
	automation *AutomationService
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      Clock
	logger     *zap.Logger

	batchLimit    int
	ticketTimeout time.Duration
}

// SweepDependencies bundles collaborators for the sweeper.
type SweepDependencies struct {
	TicketRepo    repository.TicketRepository
	Automation    *AutomationService
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Clock         Clock
	Logger        *zap.Logger
	BatchLimit    int
	TicketTimeout time.Duration
}

// NewSweepService constructs the sweeper.
func NewSweepService(deps SweepDependencies) *SweepService {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batchLimit := deps.BatchLimit
	if batchLimit <= 0 {
		batchLimit = 500
	}
	ticketTimeout := deps.TicketTimeout
	if ticketTimeout <= 0 {
		ticketTimeout = 15 * time.Second
	}
	return &SweepService{
		tickets:       deps.TicketRepo,
		automation:    deps.Automation,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		clock:         clock,
		logger:        logger,
		batchLimit:    batchLimit,
		ticketTimeout: ticketTimeout,
	}
}

// SweepExpiredTimers selects tickets whose deadline has passed with automation
// enabled and advances each through the Transition Executor.
func (s *SweepService) SweepExpiredTimers(ctx context.Context) SweepResult {
	expired, err := s.tickets.ListExpired(ctx, s.clock.Now(), s.batchLimit)
	if err != nil {
		s.logger.Error("select expired tickets", zap.Error(err))
		return SweepResult{}
	}
	if len(expired) == 0 {
		return SweepResult{}
	}

	var result SweepResult
	for _, ref := range expired {
		moved, err := s.processOne(ctx, ref)
		if err != nil {
			result.Failed++
			s.logger.Error("sweep item failed",
				zap.String("ticket_id", ref.TicketID),
				zap.String("tenant_id", ref.TenantID),
				zap.Error(err))
			continue
		}
		if moved {
			result.Processed++
		}
	}

	s.metrics.RecordSweep(result.Processed, result.Failed)
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			Type:      events.EventSweepCompleted,
			Timestamp: s.clock.Now(),
			Payload: events.SweepCompletedPayload{
				Processed: result.Processed,
				Failed:    result.Failed,
			},
		})
	}
	s.logger.Info("sweep completed",
		zap.Int("expired", len(expired)),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed))
	return result
}

// processOne isolates a single ticket with its own timeout boundary so a slow
// external send for one ticket cannot stall the rest of the batch.
func (s *SweepService) processOne(ctx context.Context, ref repository.ExpiredTicketRef) (bool, error) {
	itemCtx, cancel := context.WithTimeout(ctx, s.ticketTimeout)
	defer cancel()
	return s.automation.AdvanceExpired(itemCtx, ref.TenantID, ref.TicketID)
}
