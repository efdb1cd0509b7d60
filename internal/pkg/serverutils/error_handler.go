package serverutils

import (
	"errors"

	"ai-consultation-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware renders every error returned down the chain as an
// ErrorResponse. Errors other than *fiber.Error and *ValidationError are
// logged and reported as 500 without their text.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return WriteError(ctx, log, err)
	}
}

func WriteError(ctx *fiber.Ctx, log logger.ILogger, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Code:    fiber.StatusBadRequest,
			Message: "Validation failed",
			Errors:  verr.Fields,
		})
	}

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return ctx.Status(ferr.Code).JSON(ErrorResponse{
			Code:    ferr.Code,
			Message: ferr.Message,
		})
	}

	log.Error("HTTP", "Unhandled error", map[string]interface{}{
		"method": ctx.Method(),
		"path":   ctx.Path(),
		"error":  err,
	})
	return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Code:    fiber.StatusInternalServerError,
		Message: "Internal server error",
	})
}
