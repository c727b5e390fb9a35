package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/forest-dashboard/backend/internal/forest"
	"github.com/forest-dashboard/backend/pkg/logger"
)

type HealthHandler struct {
	service *forest.Service
	started time.Time
}

func NewHealthHandler(service *forest.Service) *HealthHandler {
	return &HealthHandler{
		service: service,
		started: time.Now(),
	}
}

// GeeTest checks that the geo engine authenticates and answers a small query.
func (h *HealthHandler) GeeTest(c *fiber.Ctx) error {
	logger.Info("Testing Earth Engine connection")

	result := h.service.GeoStatus(c.UserContext())
	if !result.Success {
		logger.Warn("Earth Engine connection test failed", zap.String("error", result.Error))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":   false,
			"error":     result.Error,
			"message":   "Earth Engine connection failed",
			"timestamp": time.Now().UTC(),
			"status":    "error",
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "Earth Engine connection successful",
		"timestamp": time.Now().UTC(),
		"status":    "connected",
	})
}

// TestConnection runs a trivial warehouse query.
func (h *HealthHandler) TestConnection(c *fiber.Ctx) error {
	result, rows := h.service.WarehouseStatus(c.UserContext())
	if !result.Success {
		logger.Warn("Warehouse connection test failed", zap.String("error", result.Error))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":   false,
			"error":     result.Error,
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "BigQuery connection successful",
		"timestamp": time.Now().UTC(),
		"test_data": rows,
	})
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC(),
	})
}

// Ready reports the backend session states without contacting the backends.
// Sessions open lazily, so "uninitialized" is not a failure.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ready",
		"sessions":  h.service.SessionStates(),
		"timestamp": time.Now().UTC(),
	})
}
