package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/kanban-service/internal/domain"
)

// TransitionRepository stores the lane-transition audit trail.
type TransitionRepository interface {
	Create(ctx context.Context, transition *domain.LaneTransition) error
	ListByTicket(ctx context.Context, tenantID, ticketID string, limit, offset int) ([]domain.LaneTransition, error)
}

type transitionRepository struct {
	pool *pgxpool.Pool
}

// NewTransitionRepository builds repository.
func NewTransitionRepository(pool *pgxpool.Pool) TransitionRepository {
	return &transitionRepository{pool: pool}
}

func (r *transitionRepository) Create(ctx context.Context, transition *domain.LaneTransition) error {
	const query = `
        INSERT INTO lane_transitions (tenant_id, ticket_id, from_lane_id, to_lane_id, trigger, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		transition.TenantID,
		transition.TicketID,
		transition.FromLaneID,
		transition.ToLaneID,
		transition.Trigger,
		transition.OccurredAt,
	).Scan(&transition.ID)
}

func (r *transitionRepository) ListByTicket(ctx context.Context, tenantID, ticketID string, limit, offset int) ([]domain.LaneTransition, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, tenant_id, ticket_id, from_lane_id, to_lane_id, trigger, occurred_at
        FROM lane_transitions WHERE tenant_id=$1 AND ticket_id=$2
        ORDER BY occurred_at ASC LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, tenantID, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LaneTransition
	for rows.Next() {
		var transition domain.LaneTransition
		if err := rows.Scan(
			&transition.ID,
			&transition.TenantID,
			&transition.TicketID,
			&transition.FromLaneID,
			&transition.ToLaneID,
			&transition.Trigger,
			&transition.OccurredAt,
		); err != nil {
			return nil, err
		}
		result = append(result, transition)
	}
	return result, rows.Err()
}
