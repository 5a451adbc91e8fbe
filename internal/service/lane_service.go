package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/kanban-service/internal/domain"
	"github.com/spec-kit/kanban-service/internal/repository"
	apperrors "github.com/spec-kit/kanban-service/pkg/util"
)

// LaneService manages tenant lane configuration.
type LaneService struct {
	lanes   repository.LaneRepository
	tickets repository.TicketRepository
}

// NewLaneService constructs the service.
func NewLaneService(lanes repository.LaneRepository, tickets repository.TicketRepository) *LaneService {
	return &LaneService{lanes: lanes, tickets: tickets}
}

// LaneInput describes lane creation/update payload.
type LaneInput struct {
	Name           string
	Color          string
	KanbanIndex    int
	Workflow       bool
	TimeoutMinutes float64
	ForwardLaneID  *string
	RollbackLaneID *string
	EntryMessage   string
}

// BoardLane pairs a lane with its current tickets for board rendering.
type BoardLane struct {
	Lane    domain.Lane
	Tickets []domain.Ticket
}

// CreateLane validates and persists a new lane.
func (s *LaneService) CreateLane(ctx context.Context, tenantID string, input LaneInput) (*domain.Lane, error) {
	if err := s.validateInput(ctx, tenantID, "", input); err != nil {
		return nil, err
	}
	lane := &domain.Lane{
		TenantID:       tenantID,
		Name:           strings.TrimSpace(input.Name),
		Color:          input.Color,
		KanbanIndex:    input.KanbanIndex,
		Workflow:       input.Workflow,
		TimeoutMinutes: input.TimeoutMinutes,
		ForwardLaneID:  input.ForwardLaneID,
		RollbackLaneID: input.RollbackLaneID,
		EntryMessage:   input.EntryMessage,
	}
	if err := s.lanes.Create(ctx, lane); err != nil {
		return nil, apperrors.MapError(err)
	}
	return lane, nil
}

// UpdateLane validates and persists lane changes.
func (s *LaneService) UpdateLane(ctx context.Context, tenantID, laneID string, input LaneInput) (*domain.Lane, error) {
	lane, err := s.GetLane(ctx, tenantID, laneID)
	if err != nil {
		return nil, err
	}
	if err := s.validateInput(ctx, tenantID, laneID, input); err != nil {
		return nil, err
	}
	lane.Name = strings.TrimSpace(input.Name)
	lane.Color = input.Color
	lane.KanbanIndex = input.KanbanIndex
	lane.Workflow = input.Workflow
	lane.TimeoutMinutes = input.TimeoutMinutes
	lane.ForwardLaneID = input.ForwardLaneID
	lane.RollbackLaneID = input.RollbackLaneID
	lane.EntryMessage = input.EntryMessage
	if err := s.lanes.Update(ctx, lane); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewLaneNotFound(laneID)
		}
		return nil, apperrors.MapError(err)
	}
	return lane, nil
}

// DeleteLane removes a lane unless other lanes still target it.
func (s *LaneService) DeleteLane(ctx context.Context, tenantID, laneID string) error {
	refs, err := s.lanes.CountReferences(ctx, tenantID, laneID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if refs > 0 {
		return apperrors.NewConflict("lane is still referenced as a forward or rollback target",
			map[string]any{"lane_id": laneID, "references": refs})
	}
	if err := s.lanes.Delete(ctx, tenantID, laneID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewLaneNotFound(laneID)
		}
		return apperrors.MapError(err)
	}
	return nil
}

// GetLane fetches one lane.
func (s *LaneService) GetLane(ctx context.Context, tenantID, laneID string) (*domain.Lane, error) {
	lane, err := s.lanes.GetByID(ctx, tenantID, laneID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewLaneNotFound(laneID)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return lane, nil
}

// ListLanes returns the tenant's lanes in board order.
func (s *LaneService) ListLanes(ctx context.Context, tenantID string) ([]domain.Lane, error) {
	lanes, err := s.lanes.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return lanes, nil
}

// Board returns the tenant's workflow lanes with their tickets.
func (s *LaneService) Board(ctx context.Context, tenantID string, ticketsPerLane int) ([]BoardLane, error) {
	lanes, err := s.ListLanes(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	board := make([]BoardLane, 0, len(lanes))
	for _, lane := range lanes {
		if !lane.Workflow {
			continue
		}
		tickets, err := s.tickets.ListByLane(ctx, tenantID, lane.ID, ticketsPerLane, 0)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		board = append(board, BoardLane{Lane: lane, Tickets: tickets})
	}
	return board, nil
}

func (s *LaneService) validateInput(ctx context.Context, tenantID, laneID string, input LaneInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	if input.TimeoutMinutes < 0 {
		return apperrors.NewValidationError("timeout_minutes must be >= 0", nil)
	}
	if err := s.validateTarget(ctx, tenantID, laneID, input.ForwardLaneID); err != nil {
		return err
	}
	return s.validateTarget(ctx, tenantID, laneID, input.RollbackLaneID)
}

// validateTarget checks that a forward/rollback reference points at a workflow
// lane of the same tenant. Transitions re-check this at execution time.
func (s *LaneService) validateTarget(ctx context.Context, tenantID, laneID string, targetID *string) error {
	if targetID == nil {
		return nil
	}
	if laneID != "" && *targetID == laneID {
		return apperrors.NewValidationError("lane cannot target itself", map[string]any{"lane_id": laneID})
	}
	target, err := s.lanes.GetByID(ctx, tenantID, *targetID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewLaneNotFound(*targetID)
	}
	if err != nil {
		return apperrors.MapError(err)
	}
	if !target.Workflow {
		return apperrors.NewLaneNotFound(*targetID)
	}
	return nil
}
