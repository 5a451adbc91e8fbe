package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/kanban-service/internal/api/dto"
	"github.com/spec-kit/kanban-service/internal/auth"
	"github.com/spec-kit/kanban-service/internal/domain"
	"github.com/spec-kit/kanban-service/internal/service"
	apperrors "github.com/spec-kit/kanban-service/pkg/util"
)

// LanesHandler manages lane configuration and the board view.
type LanesHandler struct {
	service *service.LaneService
}

// NewLanesHandler constructs handler.
func NewLanesHandler(laneService *service.LaneService) *LanesHandler {
	return &LanesHandler{service: laneService}
}

// CreateLane POST /lanes.
func (h *LanesHandler) CreateLane(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	var req dto.LaneRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	lane, err := h.service.CreateLane(c.Context(), tenantID, laneInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": laneResponse(lane)})
}

// UpdateLane PUT /lanes/:id.
func (h *LanesHandler) UpdateLane(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	var req dto.LaneRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	lane, err := h.service.UpdateLane(c.Context(), tenantID, c.Params("id"), laneInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": laneResponse(lane)})
}

// DeleteLane DELETE /lanes/:id.
func (h *LanesHandler) DeleteLane(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	if err := h.service.DeleteLane(c.Context(), tenantID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// GetLane GET /lanes/:id.
func (h *LanesHandler) GetLane(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	lane, err := h.service.GetLane(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": laneResponse(lane)})
}

// ListLanes GET /lanes.
func (h *LanesHandler) ListLanes(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	lanes, err := h.service.ListLanes(c.Context(), tenantID)
	if err != nil {
		return err
	}
	items := make([]dto.LaneResponse, 0, len(lanes))
	for i := range lanes {
		items = append(items, laneResponse(&lanes[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Board GET /board.
func (h *LanesHandler) Board(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	board, err := h.service.Board(c.Context(), tenantID, c.QueryInt("tickets_per_lane", 50))
	if err != nil {
		return err
	}
	items := make([]dto.BoardLaneResponse, 0, len(board))
	for i := range board {
		tickets := make([]dto.TicketResponse, 0, len(board[i].Tickets))
		for j := range board[i].Tickets {
			tickets = append(tickets, ticketResponse(&board[i].Tickets[j]))
		}
		items = append(items, dto.BoardLaneResponse{
			Lane:    laneResponse(&board[i].Lane),
			Tickets: tickets,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func laneInput(req dto.LaneRequest) service.LaneInput {
	return service.LaneInput{
		Name:           req.Name,
		Color:          req.Color,
		KanbanIndex:    req.KanbanIndex,
		Workflow:       req.Workflow,
		TimeoutMinutes: req.TimeoutMinutes,
		ForwardLaneID:  req.ForwardLaneID,
		RollbackLaneID: req.RollbackLaneID,
		EntryMessage:   req.EntryMessage,
	}
}

func laneResponse(lane *domain.Lane) dto.LaneResponse {
	return dto.LaneResponse{
		ID:             lane.ID,
		Name:           lane.Name,
		Color:          lane.Color,
		KanbanIndex:    lane.KanbanIndex,
		Workflow:       lane.Workflow,
		TimeoutMinutes: lane.TimeoutMinutes,
		ForwardLaneID:  lane.ForwardLaneID,
		RollbackLaneID: lane.RollbackLaneID,
		EntryMessage:   lane.EntryMessage,
		CreatedAt:      lane.CreatedAt,
		UpdatedAt:      lane.UpdatedAt,
	}
}
