package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/kanban-service/internal/api/dto"
	"github.com/spec-kit/kanban-service/internal/auth"
	"github.com/spec-kit/kanban-service/internal/domain"
	"github.com/spec-kit/kanban-service/internal/service"
	apperrors "github.com/spec-kit/kanban-service/pkg/util"
)

// TicketsHandler manages ticket endpoints around the automation engine.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.CreateTicket(c.Context(), tenantID, service.TicketCreateInput{
		ContactName:   req.ContactName,
		ContactNumber: req.ContactNumber,
		Subject:       req.Subject,
		AssigneeName:  req.AssigneeName,
		LaneID:        req.LaneID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	ticket, err := h.service.GetTicket(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// MoveTicket POST /tickets/:id/move.
func (h *TicketsHandler) MoveTicket(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	var req dto.MoveTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.LaneID) == "" {
		return apperrors.NewValidationError("lane_id required", nil)
	}
	sendGreeting := true
	if req.SendGreeting != nil {
		sendGreeting = *req.SendGreeting
	}
	ticket, err := h.service.MoveLane(c.Context(), tenantID, c.Params("id"), req.LaneID, sendGreeting)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// RecordMessage POST /tickets/:id/messages.
func (h *TicketsHandler) RecordMessage(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	var req dto.RecordMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	direction := service.MessageDirection(strings.ToLower(strings.TrimSpace(req.Direction)))
	if err := h.service.RecordMessage(c.Context(), tenantID, c.Params("id"), direction); err != nil {
		return err
	}
	return c.SendStatus(http.StatusAccepted)
}

// ListTransitions GET /tickets/:id/transitions.
func (h *TicketsHandler) ListTransitions(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 100)
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	transitions, err := h.service.ListTransitions(c.Context(), tenantID, c.Params("id"), pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.TransitionResponse, 0, len(transitions))
	for _, transition := range transitions {
		items = append(items, dto.TransitionResponse{
			ID:         transition.ID,
			FromLaneID: transition.FromLaneID,
			ToLaneID:   transition.ToLaneID,
			Trigger:    transition.Trigger,
			OccurredAt: transition.OccurredAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                ticket.ID,
		LaneID:            ticket.LaneID,
		ContactName:       ticket.ContactName,
		ContactNumber:     ticket.ContactNumber,
		Subject:           ticket.Subject,
		AssigneeName:      ticket.AssigneeName,
		TimerStartedAt:    ticket.TimerStartedAt,
		NextDeadline:      ticket.NextDeadline,
		AutomationEnabled: ticket.AutomationEnabled,
		CreatedAt:         ticket.CreatedAt,
		UpdatedAt:         ticket.UpdatedAt,
	}
}
