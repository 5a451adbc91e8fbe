package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/kanban-service/internal/domain"
)

// ExpiredTicketRef identifies a ticket selected by the expiry sweeper.
type ExpiredTicketRef struct {
	TicketID string
	TenantID string
}

// TicketRepository encapsulates ticket persistence, including the workflow-lane
// membership and timer fields mutated by the automation engine.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error)
	ListByLane(ctx context.Context, tenantID, laneID string, limit, offset int) ([]domain.Ticket, error)
	CurrentLane(ctx context.Context, tenantID, ticketID string) (*domain.Lane, error)
	ReplaceMembership(ctx context.Context, tenantID, ticketID, laneID string, state domain.TimerState) error
	SetTimerState(ctx context.Context, tenantID, ticketID string, state domain.TimerState) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]ExpiredTicketRef, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `t.id, t.tenant_id, t.contact_name, t.contact_number, t.subject,
               t.assignee_name, t.timer_started_at, t.next_deadline, t.automation_enabled,
               t.created_at, t.updated_at`

// ticketLaneJoin derives the current workflow lane from the membership record.
const ticketLaneJoin = `
        LEFT JOIN ticket_lanes tl ON tl.ticket_id = t.id
        LEFT JOIN lanes l ON l.id = tl.lane_id AND l.workflow AND l.tenant_id = t.tenant_id`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (tenant_id, contact_name, contact_number, subject, assignee_name, automation_enabled)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.TenantID,
		ticket.ContactName,
		ticket.ContactNumber,
		ticket.Subject,
		ticket.AssigneeName,
		ticket.AutomationEnabled,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `, l.id FROM tickets t` + ticketLaneJoin + `
        WHERE t.id=$1 AND t.tenant_id=$2`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id, tenantID).Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.ContactName,
		&ticket.ContactNumber,
		&ticket.Subject,
		&ticket.AssigneeName,
		&ticket.TimerStartedAt,
		&ticket.NextDeadline,
		&ticket.AutomationEnabled,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.LaneID,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListByLane(ctx context.Context, tenantID, laneID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + ticketColumns + `, l.id FROM tickets t
        JOIN ticket_lanes tl ON tl.ticket_id = t.id
        JOIN lanes l ON l.id = tl.lane_id AND l.workflow AND l.tenant_id = t.tenant_id
        WHERE t.tenant_id=$1 AND l.id=$2
        ORDER BY t.updated_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, tenantID, laneID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TenantID,
			&ticket.ContactName,
			&ticket.ContactNumber,
			&ticket.Subject,
			&ticket.AssigneeName,
			&ticket.TimerStartedAt,
			&ticket.NextDeadline,
			&ticket.AutomationEnabled,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.LaneID,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) CurrentLane(ctx context.Context, tenantID, ticketID string) (*domain.Lane, error) {
	const query = `
        SELECT l.id, l.tenant_id, l.name, l.color, l.kanban_index, l.workflow,
               l.timeout_minutes, l.forward_lane_id, l.rollback_lane_id, l.entry_message,
               l.created_at, l.updated_at
        FROM lanes l
        JOIN ticket_lanes tl ON tl.lane_id = l.id
        WHERE tl.ticket_id=$1 AND l.tenant_id=$2 AND l.workflow
        LIMIT 1`
	lane, err := scanLane(r.pool.QueryRow(ctx, query, ticketID, tenantID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lane, nil
}

// ReplaceMembership atomically swaps the ticket's workflow-lane membership and
// writes the given timer state. The ticket row is locked for the duration so
// concurrent transitions on the same ticket cannot interleave; memberships in
// non-workflow lanes are left untouched.
func (r *ticketRepository) ReplaceMembership(ctx context.Context, tenantID, ticketID, laneID string, state domain.TimerState) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var lockedID string
	if err := tx.QueryRow(ctx,
		`SELECT id FROM tickets WHERE id=$1 AND tenant_id=$2 FOR UPDATE`,
		ticketID, tenantID,
	).Scan(&lockedID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
        DELETE FROM ticket_lanes USING lanes
        WHERE ticket_lanes.lane_id = lanes.id
          AND ticket_lanes.ticket_id = $1
          AND lanes.workflow`, ticketID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ticket_lanes (ticket_id, lane_id) VALUES ($1,$2)`,
		ticketID, laneID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
        UPDATE tickets SET timer_started_at=$1, next_deadline=$2, automation_enabled=$3, updated_at=NOW()
        WHERE id=$4`,
		state.TimerStartedAt, state.NextDeadline, state.AutomationEnabled, ticketID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ticketRepository) SetTimerState(ctx context.Context, tenantID, ticketID string, state domain.TimerState) error {
	const query = `
        UPDATE tickets SET timer_started_at=$1, next_deadline=$2, automation_enabled=$3, updated_at=NOW()
        WHERE id=$4 AND tenant_id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		state.TimerStartedAt, state.NextDeadline, state.AutomationEnabled, ticketID, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]ExpiredTicketRef, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `
        SELECT t.id, t.tenant_id FROM tickets t
        WHERE t.next_deadline <= $1
          AND t.timer_started_at IS NOT NULL
          AND t.automation_enabled
          AND EXISTS (
              SELECT 1 FROM ticket_lanes tl
              JOIN lanes l ON l.id = tl.lane_id
              WHERE tl.ticket_id = t.id AND l.workflow)
        ORDER BY t.next_deadline ASC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ExpiredTicketRef
	for rows.Next() {
		var ref ExpiredTicketRef
		if err := rows.Scan(&ref.TicketID, &ref.TenantID); err != nil {
			return nil, err
		}
		result = append(result, ref)
	}
	return result, rows.Err()
}
