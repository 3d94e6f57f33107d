package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"geofyle/internal/service"
)

type authRequest struct {
	DeviceID string `json:"deviceId"`
}

// Authenticate registers the device and issues a bearer token.
//
// @Summary Authenticate a device
// @Tags auth
// @Accept json
// @Produce json
// @Param body body authRequest true "device"
// @Success 200 {object} service.Token
// @Failure 400 {object} errorPayload
// @Router /v1/auth [post]
func Authenticate(svc service.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req authRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "MISSING_DEVICE_ID", "deviceId is required")
		}

		tok, err := svc.Authenticate(c.UserContext(), req.DeviceID)
		if errors.Is(err, service.ErrIDRequired) {
			return writeError(c, fiber.StatusBadRequest, "MISSING_DEVICE_ID", "deviceId is required")
		}
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(tok)
	}
}
