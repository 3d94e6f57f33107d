package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// DeviceIDLocalKey is the locals key holding the authenticated device ID.
const DeviceIDLocalKey = "device_id"

// TokenVerifier resolves a bearer token to a device ID.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// DeviceAuth rejects requests without a valid "Authorization: Bearer <token>"
// header with 401. The global error handler renders the error body.
func DeviceAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		deviceID, err := verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(DeviceIDLocalKey, deviceID)
		return c.Next()
	}
}

// DeviceIDFrom returns the device ID stored by DeviceAuth, or "".
func DeviceIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(DeviceIDLocalKey).(string)
	return id
}
