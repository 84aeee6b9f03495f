package serverutils

import (
	"errors"

	"deep-research-be/pkg/research/executor"
	"deep-research-be/pkg/store"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware maps domain errors returned by handlers to HTTP
// status codes so controllers can simply return errors upward.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var validationErr *ValidationError
		var fiberErr *fiber.Error
		var stageErr *executor.StageError

		switch {
		case errors.As(err, &validationErr):
			return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponse(fiber.StatusBadRequest, validationErr.Message))
		case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrAnswerNotReady):
			return ctx.Status(fiber.StatusNotFound).JSON(ErrorResponse(fiber.StatusNotFound, err.Error()))
		case errors.Is(err, executor.ErrSessionBusy), errors.Is(err, executor.ErrSessionFinished):
			return ctx.Status(fiber.StatusConflict).JSON(ErrorResponse(fiber.StatusConflict, err.Error()))
		case errors.As(err, &stageErr):
			return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, stageErr.Error()))
		case errors.As(err, &fiberErr):
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, "Internal server error"))
		}
	}
}
