package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/kanban-service/internal/api/dto"
	"github.com/spec-kit/kanban-service/internal/auth"
	"github.com/spec-kit/kanban-service/internal/domain"
	"github.com/spec-kit/kanban-service/internal/repository"
	apperrors "github.com/spec-kit/kanban-service/pkg/util"
)

// SettingsHandler manages tenant settings.
type SettingsHandler struct {
	settings repository.SettingsRepository
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(settings repository.SettingsRepository) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetSettings GET /settings.
func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	settings, err := h.settings.Get(c.Context(), tenantID)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": settingsResponse(settings)})
}

// UpdateSettings PUT /settings.
func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	tenantID, ok := auth.TenantFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("tenant required")
	}
	var req dto.SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	settings := &domain.TenantSettings{
		TenantID:           tenantID,
		SendAgentSignature: req.SendAgentSignature,
	}
	if err := h.settings.Upsert(c.Context(), settings); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": settingsResponse(settings)})
}

func settingsResponse(settings *domain.TenantSettings) dto.SettingsResponse {
	return dto.SettingsResponse{
		SendAgentSignature: settings.SendAgentSignature,
		UpdatedAt:          settings.UpdatedAt,
	}
}
