package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemforge/api/internal/service"
	"github.com/stemforge/api/internal/store"
	"github.com/stemforge/api/pkg/response"
)

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

// respondServiceError translates service errors to boundary codes. Error
// trace text is only exposed when dev is set.
func respondServiceError(c *fiber.Ctx, err error, dev bool) error {
	if errors.Is(err, store.ErrNotFound) {
		return response.NotFound(c, "Job not found")
	}
	var provErr *service.ProviderError
	if errors.As(err, &provErr) {
		if dev {
			return response.AIError(c, provErr.Error())
		}
		return response.AIError(c, "AI provider request failed")
	}
	if dev {
		return response.ServiceError(c, err.Error())
	}
	return response.ServiceError(c, "An internal error occurred")
}
