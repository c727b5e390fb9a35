package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/forest-dashboard/backend/internal/forest"
	"github.com/forest-dashboard/backend/internal/middleware/validation"
)

// DashboardHandler serves the warehouse-backed KPI and timeseries endpoints.
type DashboardHandler struct {
	service *forest.Service
}

func NewDashboardHandler(service *forest.Service) *DashboardHandler {
	return &DashboardHandler{
		service: service,
	}
}

func (h *DashboardHandler) GetKPIs(c *fiber.Ctx) error {
	country, err := validation.ParseCountry(c)
	if err != nil {
		return respondError(c, "kpis", err)
	}

	kpi, err := h.service.KPIs(c.UserContext(), country)
	if err != nil {
		return respondError(c, "kpis", err)
	}

	return c.JSON(kpi)
}

func (h *DashboardHandler) GetTimeseries(c *fiber.Ctx) error {
	country, err := validation.ParseCountry(c)
	if err != nil {
		return respondError(c, "timeseries", err)
	}

	resp, err := h.service.Timeseries(c.UserContext(), country)
	if err != nil {
		return respondError(c, "timeseries", err)
	}

	return c.JSON(resp)
}
