package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/forest-dashboard/backend/internal/forest"
	"github.com/forest-dashboard/backend/internal/middleware/validation"
)

// ForestHandler serves the geo-engine endpoints.
type ForestHandler struct {
	service *forest.Service
}

func NewForestHandler(service *forest.Service) *ForestHandler {
	return &ForestHandler{
		service: service,
	}
}

func (h *ForestHandler) GetForestLoss(c *fiber.Ctx) error {
	params, err := validation.ParseForestLossParams(c)
	if err != nil {
		return respondError(c, "forest_loss", err)
	}

	resp, err := h.service.ForestLoss(c.UserContext(), params)
	if err != nil {
		return respondError(c, "forest_loss", err)
	}

	return c.JSON(resp)
}

// ForestLossOptions answers CORS preflight for the forest-loss endpoint,
// open to any origin.
func (h *ForestHandler) ForestLossOptions(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowMethods, "GET, OPTIONS")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type")
	return c.SendStatus(fiber.StatusOK)
}

func (h *ForestHandler) GetDataset(c *fiber.Ctx) error {
	q, err := validation.ParseDatasetParams(c)
	if err != nil {
		return respondError(c, "dataset", err)
	}

	report, err := h.service.Dataset(c.UserContext(), q)
	if err != nil {
		return respondError(c, "dataset", err)
	}

	return c.JSON(report)
}
