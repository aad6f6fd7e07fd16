package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"askhub_backend/pkg/apperr"
	"askhub_backend/pkg/utils/validation"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(Response{Success: true, Data: data})
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Wrap(apperr.ErrValidation, err, "invalid request body")
	}
	return validation.Struct(out)
}

// ErrorHandler renders errors returned by handlers. Internal causes go to
// the log only.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(Response{Error: fe.Message})
		}

		kind := apperr.KindOf(err)
		event := log.Warn()
		if kind.Status >= fiber.StatusInternalServerError {
			event = log.Error()
		}
		event.Err(err).
			Str("code", kind.Code).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Msg("request failed")

		return c.Status(kind.Status).JSON(Response{
			Error: apperr.PublicMessage(err),
			Code:  kind.Code,
		})
	}
}
