package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/kanban-service/internal/domain"
	"github.com/spec-kit/kanban-service/internal/events"
	"github.com/spec-kit/kanban-service/internal/messaging"
	"github.com/spec-kit/kanban-service/internal/observability"
	"github.com/spec-kit/kanban-service/internal/repository"
	"github.com/spec-kit/kanban-service/pkg/keylock"
	apperrors "github.com/spec-kit/kanban-service/pkg/util"
)

// AutomationService is the lane automation engine: it owns every transition of
// a ticket between workflow lanes and the per-ticket timer state. All paths
// that mutate a ticket's membership or timers (manual moves, customer
// responses, expiry sweeps) serialize on a per-ticket lock, so two transitions
// for the same ticket can never interleave while tickets remain independent of
// each other.
type AutomationService struct {
	lanes       repository.LaneRepository
	tickets     repository.TicketRepository
	transitions repository.TransitionRepository
	settings    repository.SettingsRepository
	dispatcher  events.Dispatcher
	messenger   messaging.Dispatcher
	metrics     *observability.Metrics
	locks       *keylock.KeyLock
	clock       Clock
	logger      *zap.Logger

	greetingTimeout time.Duration
}

// AutomationDependencies bundles collaborators for the engine.
type AutomationDependencies struct {
	LaneRepo        repository.LaneRepository
	TicketRepo      repository.TicketRepository
	TransitionRepo  repository.TransitionRepository
	SettingsRepo    repository.SettingsRepository
	Dispatcher      events.Dispatcher
	Messenger       messaging.Dispatcher
	Metrics         *observability.Metrics
	Clock           Clock
	Logger          *zap.Logger
	GreetingTimeout time.Duration
}

// NewAutomationService constructs the engine.
func NewAutomationService(deps AutomationDependencies) *AutomationService {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	greetingTimeout := deps.GreetingTimeout
	if greetingTimeout <= 0 {
		greetingTimeout = 10 * time.Second
	}
	return &AutomationService{
		lanes:           deps.LaneRepo,
		tickets:         deps.TicketRepo,
		transitions:     deps.TransitionRepo,
		settings:        deps.SettingsRepo,
		dispatcher:      deps.Dispatcher,
		messenger:       deps.Messenger,
		metrics:         deps.Metrics,
		locks:           keylock.New(),
		clock:           clock,
		logger:          logger,
		greetingTimeout: greetingTimeout,
	}
}

type moveOptions struct {
	sendGreeting      bool
	trigger           domain.TransitionTrigger
	automationEnabled bool
}

// MoveTicketLane moves a ticket into the target workflow lane: the old
// membership is replaced, timers are cleared and automation re-enabled. The
// caller is expected to invoke StartLaneTimer afterwards to arm the new lane's
// timer. The target must be a workflow lane of the same tenant or the call
// fails with LANE_NOT_FOUND and no mutation happens.
func (s *AutomationService) MoveTicketLane(ctx context.Context, tenantID, ticketID, laneID string, sendGreeting bool) (*domain.Ticket, error) {
	s.locks.Lock(ticketID)
	defer s.locks.Unlock(ticketID)

	ticket, err := s.getTicket(ctx, tenantID, ticketID)
	if err != nil {
		return nil, err
	}
	lane, err := s.getWorkflowLane(ctx, tenantID, laneID)
	if err != nil {
		return nil, err
	}
	return s.moveLocked(ctx, ticket, lane, moveOptions{
		sendGreeting:      sendGreeting,
		trigger:           domain.TriggerManual,
		automationEnabled: true,
	})
}

// StartLaneTimer arms the expiry timer for the ticket's current lane. It is a
// no-op when the ticket is off the board or the lane is terminal (no timeout
// or no forward target). Calling it twice simply recomputes the deadline from
// now.
func (s *AutomationService) StartLaneTimer(ctx context.Context, tenantID, ticketID string) error {
	s.locks.Lock(ticketID)
	defer s.locks.Unlock(ticketID)

	ticket, err := s.getTicket(ctx, tenantID, ticketID)
	if err != nil {
		return err
	}
	lane, err := s.tickets.CurrentLane(ctx, tenantID, ticketID)
	if err != nil {
		return err
	}
	if lane == nil {
		s.logger.Debug("ticket not on board; timer not started", zap.String("ticket_id", ticketID))
		return nil
	}
	return s.armLocked(ctx, ticket, lane)
}

// HandleCustomerResponse reacts to an inbound customer message. Without an
// active timer nothing happens. With one, the ticket either rolls back to the
// lane's rollback target with automation disabled, or only has its timer
// cancelled when no rollback target is configured.
func (s *AutomationService) HandleCustomerResponse(ctx context.Context, tenantID, ticketID string) error {
	s.locks.Lock(ticketID)
	defer s.locks.Unlock(ticketID)

	ticket, err := s.getTicket(ctx, tenantID, ticketID)
	if err != nil {
		return err
	}
	if !ticket.TimerActive() {
		return nil
	}
	lane, err := s.tickets.CurrentLane(ctx, tenantID, ticketID)
	if err != nil {
		return err
	}
	if lane == nil {
		// stale timer on a ticket that left the board
		return s.cancelTimerLocked(ctx, ticket, nil, "no_workflow_lane")
	}

	if lane.RollbackLaneID != nil {
		rollback, err := s.getWorkflowLane(ctx, tenantID, *lane.RollbackLaneID)
		if err != nil {
			return err
		}
		// single atomic mutation: rollback move and automation off together,
		// so a crash can never leave the rollback lane sweepable
		_, err = s.moveLocked(ctx, ticket, rollback, moveOptions{
			sendGreeting:      true,
			trigger:           domain.TriggerCustomerResponse,
			automationEnabled: false,
		})
		return err
	}

	return s.cancelTimerLocked(ctx, ticket, &lane.ID, "customer_response")
}

// AdvanceExpired is the sweeper's per-ticket entry point. It re-reads state
// under the ticket lock and only moves the ticket if the expiry still holds;
// losing a race to a concurrent transition is a designed no-op. Returns
// whether the ticket was moved.
func (s *AutomationService) AdvanceExpired(ctx context.Context, tenantID, ticketID string) (bool, error) {
	s.locks.Lock(ticketID)
	defer s.locks.Unlock(ticketID)

	ticket, err := s.tickets.GetByID(ctx, tenantID, ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := s.clock.Now()
	if !ticket.AutomationEnabled || !ticket.TimerActive() || ticket.NextDeadline.After(now) {
		// another path already handled this ticket between selection and here
		return false, nil
	}

	lane, err := s.tickets.CurrentLane(ctx, tenantID, ticketID)
	if err != nil {
		return false, err
	}
	if lane == nil {
		s.logger.Warn("expired ticket has no workflow lane; clearing timer", zap.String("ticket_id", ticketID))
		return false, s.cancelTimerLocked(ctx, ticket, nil, "no_workflow_lane")
	}
	if lane.ForwardLaneID == nil {
		// should not happen while invariant 2 holds; clean up rather than loop
		s.logger.Warn("expired ticket in lane without forward target; clearing timer",
			zap.String("ticket_id", ticketID), zap.String("lane_id", lane.ID))
		return false, s.cancelTimerLocked(ctx, ticket, &lane.ID, "no_forward_lane")
	}

	forward, err := s.getWorkflowLane(ctx, tenantID, *lane.ForwardLaneID)
	if err != nil {
		return false, err
	}
	ticket, err = s.moveLocked(ctx, ticket, forward, moveOptions{
		sendGreeting:      true,
		trigger:           domain.TriggerTimer,
		automationEnabled: true,
	})
	if err != nil {
		return false, err
	}
	if err := s.armLocked(ctx, ticket, forward); err != nil {
		return true, err
	}
	return true, nil
}

// moveLocked performs the transition proper. Callers must hold the ticket lock.
func (s *AutomationService) moveLocked(ctx context.Context, ticket *domain.Ticket, lane *domain.Lane, opts moveOptions) (*domain.Ticket, error) {
	fromLaneID := ticket.LaneID
	state := domain.ClearedTimer(opts.automationEnabled)

	if err := s.tickets.ReplaceMembership(ctx, ticket.TenantID, ticket.ID, lane.ID, state); err != nil {
		return nil, err
	}
	ticket.LaneID = &lane.ID
	ticket.TimerState = state

	transition := &domain.LaneTransition{
		TenantID:   ticket.TenantID,
		TicketID:   ticket.ID,
		FromLaneID: fromLaneID,
		ToLaneID:   lane.ID,
		Trigger:    opts.trigger,
		OccurredAt: s.clock.Now(),
	}
	if err := s.transitions.Create(ctx, transition); err != nil {
		// the move is already committed; an audit gap is logged, not undone
		s.logger.Error("record lane transition",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	s.metrics.RecordTransition(string(opts.trigger))

	s.publish(ctx, events.Event{
		Type:     events.EventTicketLaneMoved,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload: events.TicketLaneMovedPayload{
			FromLaneID: fromLaneID,
			ToLaneID:   lane.ID,
			Trigger:    opts.trigger,
			Ticket:     events.SnapshotTicket(ticket),
		},
	})

	if opts.sendGreeting && strings.TrimSpace(lane.EntryMessage) != "" {
		// greeting dispatch stays off the critical path holding the lock
		snapshot := *ticket
		go s.sendGreeting(snapshot, lane)
	}
	return ticket, nil
}

// armLocked starts the timer for the given lane. Callers must hold the ticket lock.
func (s *AutomationService) armLocked(ctx context.Context, ticket *domain.Ticket, lane *domain.Lane) error {
	if !lane.Timed() {
		s.logger.Debug("lane has no timeout or forward target; timer not started",
			zap.String("ticket_id", ticket.ID), zap.String("lane_id", lane.ID))
		return nil
	}
	now := s.clock.Now()
	deadline := now.Add(lane.TimeoutDuration())
	state := domain.ArmedTimer(now, deadline)

	if err := s.tickets.SetTimerState(ctx, ticket.TenantID, ticket.ID, state); err != nil {
		return err
	}
	ticket.TimerState = state

	s.publish(ctx, events.Event{
		Type:     events.EventLaneTimerStarted,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload: events.LaneTimerStartedPayload{
			LaneID:       lane.ID,
			StartedAt:    now,
			NextDeadline: deadline,
		},
	})
	return nil
}

// cancelTimerLocked clears timer fields, leaving the automation flag as-is.
func (s *AutomationService) cancelTimerLocked(ctx context.Context, ticket *domain.Ticket, laneID *string, reason string) error {
	state := domain.ClearedTimer(ticket.AutomationEnabled)
	if err := s.tickets.SetTimerState(ctx, ticket.TenantID, ticket.ID, state); err != nil {
		return err
	}
	ticket.TimerState = state

	s.publish(ctx, events.Event{
		Type:     events.EventLaneTimerCancelled,
		TenantID: ticket.TenantID,
		TicketID: ticket.ID,
		Payload: events.LaneTimerCancelledPayload{
			LaneID: laneID,
			Reason: reason,
		},
	})
	return nil
}

func (s *AutomationService) sendGreeting(ticket domain.Ticket, lane *domain.Lane) {
	ctx, cancel := context.WithTimeout(context.Background(), s.greetingTimeout)
	defer cancel()

	body := lane.EntryMessage
	settings, err := s.settings.Get(ctx, ticket.TenantID)
	if err != nil {
		s.logger.Warn("load tenant settings for greeting", zap.Error(err))
	} else if settings.SendAgentSignature && ticket.AssigneeName != nil {
		body = messaging.SignBody(*ticket.AssigneeName, body)
	}

	err = s.messenger.Send(ctx, messaging.Outbound{
		TenantID:      ticket.TenantID,
		TicketID:      ticket.ID,
		ContactNumber: ticket.ContactNumber,
		Body:          body,
	})
	if err != nil {
		// delivery is best-effort; the transition already committed
		s.logger.Warn("greeting dispatch failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("lane_id", lane.ID),
			zap.Error(err))
	}
}

func (s *AutomationService) getTicket(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, tenantID, ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewTicketNotFound(ticketID)
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// getWorkflowLane resolves a lane for a transition. Cross-tenant references
// and non-workflow lanes are rejected here, at transition time, not only at
// configuration time.
func (s *AutomationService) getWorkflowLane(ctx context.Context, tenantID, laneID string) (*domain.Lane, error) {
	lane, err := s.lanes.GetByID(ctx, tenantID, laneID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewLaneNotFound(laneID)
	}
	if err != nil {
		return nil, err
	}
	if !lane.Workflow {
		return nil, apperrors.NewLaneNotFound(laneID)
	}
	return lane, nil
}

func (s *AutomationService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
