package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/kanban-service/internal/domain"
)

// LaneRepository encapsulates lane configuration persistence.
type LaneRepository interface {
	Create(ctx context.Context, lane *domain.Lane) error
	Update(ctx context.Context, lane *domain.Lane) error
	Delete(ctx context.Context, tenantID, id string) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Lane, error)
	ListByTenant(ctx context.Context, tenantID string) ([]domain.Lane, error)
	CountReferences(ctx context.Context, tenantID, id string) (int, error)
}

type laneRepository struct {
	pool *pgxpool.Pool
}

// NewLaneRepository instantiates repository.
func NewLaneRepository(pool *pgxpool.Pool) LaneRepository {
	return &laneRepository{pool: pool}
}

const laneColumns = `id, tenant_id, name, color, kanban_index, workflow,
               timeout_minutes, forward_lane_id, rollback_lane_id, entry_message,
               created_at, updated_at`

func (r *laneRepository) Create(ctx context.Context, lane *domain.Lane) error {
	const query = `
        INSERT INTO lanes (tenant_id, name, color, kanban_index, workflow, timeout_minutes, forward_lane_id, rollback_lane_id, entry_message)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		lane.TenantID,
		lane.Name,
		lane.Color,
		lane.KanbanIndex,
		lane.Workflow,
		lane.TimeoutMinutes,
		lane.ForwardLaneID,
		lane.RollbackLaneID,
		lane.EntryMessage,
	).Scan(&lane.ID, &lane.CreatedAt, &lane.UpdatedAt)
}

func (r *laneRepository) Update(ctx context.Context, lane *domain.Lane) error {
	const query = `
        UPDATE lanes SET name=$1, color=$2, kanban_index=$3, workflow=$4, timeout_minutes=$5,
            forward_lane_id=$6, rollback_lane_id=$7, entry_message=$8, updated_at=NOW()
        WHERE id=$9 AND tenant_id=$10`
	cmd, err := r.pool.Exec(ctx, query,
		lane.Name,
		lane.Color,
		lane.KanbanIndex,
		lane.Workflow,
		lane.TimeoutMinutes,
		lane.ForwardLaneID,
		lane.RollbackLaneID,
		lane.EntryMessage,
		lane.ID,
		lane.TenantID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *laneRepository) Delete(ctx context.Context, tenantID, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM lanes WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *laneRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Lane, error) {
	query := `SELECT ` + laneColumns + ` FROM lanes WHERE id=$1 AND tenant_id=$2`
	row := r.pool.QueryRow(ctx, query, id, tenantID)
	return scanLane(row)
}

func (r *laneRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.Lane, error) {
	query := `SELECT ` + laneColumns + ` FROM lanes WHERE tenant_id=$1 ORDER BY kanban_index ASC, name ASC`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Lane
	for rows.Next() {
		lane, err := scanLane(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *lane)
	}
	return result, rows.Err()
}

// CountReferences returns how many other lanes use id as forward or rollback target.
func (r *laneRepository) CountReferences(ctx context.Context, tenantID, id string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM lanes
        WHERE tenant_id=$1 AND id <> $2 AND (forward_lane_id=$2 OR rollback_lane_id=$2)`
	var count int
	if err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanLane(row pgx.Row) (*domain.Lane, error) {
	var lane domain.Lane
	if err := row.Scan(
		&lane.ID,
		&lane.TenantID,
		&lane.Name,
		&lane.Color,
		&lane.KanbanIndex,
		&lane.Workflow,
		&lane.TimeoutMinutes,
		&lane.ForwardLaneID,
		&lane.RollbackLaneID,
		&lane.EntryMessage,
		&lane.CreatedAt,
		&lane.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &lane, nil
}
