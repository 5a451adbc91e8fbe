package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/kanban-service/internal/domain"
	"github.com/spec-kit/kanban-service/internal/repository"
	apperrors "github.com/spec-kit/kanban-service/pkg/util"
)

// MessageDirection tells the ingestion hook who authored a persisted message.
type MessageDirection string

const (
	MessageInbound  MessageDirection = "inbound"
	MessageOutbound MessageDirection = "outbound"
)

// TicketService covers the ticket surface around the engine: creation, reads,
// the manual move operation, and the message-ingestion hook.
type TicketService struct {
	tickets     repository.TicketRepository
	transitions repository.TransitionRepository
	automation  *AutomationService
	logger      *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(tickets repository.TicketRepository, transitions repository.TransitionRepository, automation *AutomationService, logger *zap.Logger) *TicketService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:     tickets,
		transitions: transitions,
		automation:  automation,
		logger:      logger,
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	ContactName   string
	ContactNumber string
	Subject       string
	AssigneeName  *string
	LaneID        *string
}

// CreateTicket creates a ticket, optionally placing it on the board right away.
func (s *TicketService) CreateTicket(ctx context.Context, tenantID string, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.ContactName) == "" || strings.TrimSpace(input.ContactNumber) == "" {
		return nil, apperrors.NewValidationError("contact_name and contact_number required", nil)
	}

	ticket := &domain.Ticket{
		TenantID:      tenantID,
		ContactName:   strings.TrimSpace(input.ContactName),
		ContactNumber: strings.TrimSpace(input.ContactNumber),
		Subject:       strings.TrimSpace(input.Subject),
		AssigneeName:  input.AssigneeName,
		TimerState:    domain.ClearedTimer(true),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if input.LaneID != nil {
		moved, err := s.MoveLane(ctx, tenantID, ticket.ID, *input.LaneID, true)
		if err != nil {
			return nil, err
		}
		return moved, nil
	}
	return ticket, nil
}

// GetTicket fetches a ticket with its derived lane.
func (s *TicketService) GetTicket(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, tenantID, ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewTicketNotFound(ticketID)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// MoveLane executes a manual move and immediately re-arms the new lane's timer.
func (s *TicketService) MoveLane(ctx context.Context, tenantID, ticketID, laneID string, sendGreeting bool) (*domain.Ticket, error) {
	if _, err := s.automation.MoveTicketLane(ctx, tenantID, ticketID, laneID, sendGreeting); err != nil {
		return nil, err
	}
	if err := s.automation.StartLaneTimer(ctx, tenantID, ticketID); err != nil {
		return nil, err
	}
	return s.GetTicket(ctx, tenantID, ticketID)
}

// ListTransitions returns the ticket's lane history.
func (s *TicketService) ListTransitions(ctx context.Context, tenantID, ticketID string, limit, offset int) ([]domain.LaneTransition, error) {
	if _, err := s.GetTicket(ctx, tenantID, ticketID); err != nil {
		return nil, err
	}
	transitions, err := s.transitions.ListByTicket(ctx, tenantID, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return transitions, nil
}

// RecordMessage is the ingestion hook called after a message has been
// persisted: an outbound (agent) message arms the lane timer, an inbound
// (customer) message runs the response interceptor. Engine errors are logged
// and swallowed so message acceptance never fails on automation.
func (s *TicketService) RecordMessage(ctx context.Context, tenantID, ticketID string, direction MessageDirection) error {
	if _, err := s.GetTicket(ctx, tenantID, ticketID); err != nil {
		return err
	}

	var err error
	switch direction {
	case MessageOutbound:
		err = s.automation.StartLaneTimer(ctx, tenantID, ticketID)
	case MessageInbound:
		err = s.automation.HandleCustomerResponse(ctx, tenantID, ticketID)
	default:
		return apperrors.NewValidationError("direction must be inbound or outbound", nil)
	}
	if err != nil {
		s.logger.Error("lane automation hook failed",
			zap.String("ticket_id", ticketID),
			zap.String("direction", string(direction)),
			zap.Error(err))
	}
	return nil
}
