package handler

import (
	"github.com/gofiber/fiber/v2"

	"geofyle/internal/http/middleware"
	"geofyle/internal/service"
)

// Services are the dependencies the routes are served from.
type Services struct {
	Health HealthChecker
	Files  service.FileService
	Search service.SearchEngine
	Gate   service.AccessGate
	Auth   service.AuthService

	// RequireAuth guards /v1/files with the device token middleware.
	RequireAuth bool
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, s Services) {
	app.Get("/health", HealthCheck(s.Health))
	app.Get("/healthz", LivenessProbe())

	v1 := app.Group("/v1")
	v1.Post("/auth", Authenticate(s.Auth))

	files := v1.Group("/files")
	if s.RequireAuth {
		files.Use(middleware.DeviceAuth(s.Auth))
	}
	files.Post("/", CreateFile(s.Files))
	// Registered before /:id so "nearby" is not taken as an id.
	files.Get("/nearby", FindNearby(s.Search))
	files.Get("/:id", GetFile(s.Files))
	files.Get("/:id/download", DownloadFile(s.Gate))
	files.Delete("/:id", DeleteFile(s.Files))
}
