package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/forest-dashboard/backend/pkg/apperror"
	"github.com/forest-dashboard/backend/pkg/logger"
)

type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// respondError classifies err and writes the matching status and body.
// Validation errors carry their own tag and guidance and no details.
func respondError(c *fiber.Ctx, op string, err error) error {
	category := apperror.Classify(err)
	body := errorResponse{
		Error:     category.Tag,
		Message:   category.Message,
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
	}

	appErr, typed := apperror.As(err)
	if typed && appErr.Hint != "" {
		body.Message = appErr.Hint
	}

	switch category {
	case apperror.CategoryValidation:
		body.Error = appErr.Message
		body.Details = ""
	case apperror.CategoryNotFound:
		if country := strings.TrimSpace(c.Query("country")); country != "" {
			body.Message = fmt.Sprintf("The country \"%s\" was not found in the dataset. Please check the spelling and try again.", country)
		}
	}

	if category.Status >= fiber.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("operation", op),
			zap.String("category", category.Name),
			zap.Error(err),
		)
	} else {
		logger.Debug("Request rejected",
			zap.String("operation", op),
			zap.String("category", category.Name),
			zap.Error(err),
		)
	}

	return c.Status(category.Status).JSON(body)
}
