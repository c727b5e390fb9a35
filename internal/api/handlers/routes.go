package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/forest-dashboard/backend/internal/forest"
)

const ForestLossPath = "/forest-loss"

// RegisterRoutes mounts the JSON API on router, normally the /api group.
func RegisterRoutes(router fiber.Router, service *forest.Service) {
	dashboard := NewDashboardHandler(service)
	forestHandler := NewForestHandler(service)
	health := NewHealthHandler(service)

	router.Get("/kpis", dashboard.GetKPIs)
	router.Get("/timeseries", dashboard.GetTimeseries)

	router.Get(ForestLossPath, forestHandler.GetForestLoss)
	router.Options(ForestLossPath, forestHandler.ForestLossOptions)
	router.Get("/dataset", forestHandler.GetDataset)

	router.Get("/gee-test", health.GeeTest)
	router.Get("/test-connection", health.TestConnection)
	router.Get("/health", health.Health)
	router.Get("/ready", health.Ready)
}
