package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"geofyle/internal/model"
	"geofyle/internal/service"
)

// downloadResponse is the body returned by a granted download.
type downloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
}

// CreateFile registers file metadata and returns a presigned upload URL.
//
// @Summary Create a location-bound file
// @Tags files
// @Accept json
// @Produce json
// @Param body body service.CreateFileInput true "file metadata"
// @Success 201 {object} service.UploadResult
// @Failure 400 {object} errorPayload
// @Failure 413 {object} errorPayload
// @Security BearerAuth
// @Router /v1/files [post]
func CreateFile(svc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.CreateFileInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "MISSING_PARAMETERS", "request body must be a JSON object")
		}

		res, err := svc.Create(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// FindNearby lists live files around a point.
//
// @Summary Discover nearby files
// @Tags files
// @Produce json
// @Param latitude query number true "latitude"
// @Param longitude query number true "longitude"
// @Param radius query number false "radius in meters"
// @Success 200 {array} model.FileView
// @Failure 400 {object} errorPayload
// @Security BearerAuth
// @Router /v1/files/nearby [get]
func FindNearby(engine service.SearchEngine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		loc, ok, err := locationFromQuery(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "MISSING_PARAMETERS", "latitude and longitude are required")
		}
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_COORDINATES", "latitude and longitude must be numbers")
		}

		var radius float64
		if raw := c.Query("radius"); raw != "" {
			radius, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_RADIUS", "radius must be a number")
			}
		} else {
			radius = engine.DefaultRadius()
		}

		files, err := engine.FindNearby(c.UserContext(), loc, radius)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(files)
	}
}

// GetFile returns a file's metadata.
//
// @Summary Get file details
// @Tags files
// @Produce json
// @Param id path string true "file id"
// @Success 200 {object} model.FileView
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /v1/files/{id} [get]
func GetFile(svc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		file, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(file)
	}
}

// DownloadFile authorizes a download from the requester's location.
//
// @Summary Get a download URL
// @Tags files
// @Produce json
// @Param id path string true "file id"
// @Param latitude query number true "requester latitude"
// @Param longitude query number true "requester longitude"
// @Success 200 {object} downloadResponse
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /v1/files/{id}/download [get]
func DownloadFile(gate service.AccessGate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		loc, ok, err := locationFromQuery(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "MISSING_PARAMETERS", "latitude and longitude are required")
		}
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_COORDINATES", "latitude and longitude must be numbers")
		}

		grant, err := gate.AuthorizeAndRenewDownload(c.UserContext(), id, loc)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(downloadResponse{DownloadURL: grant.DownloadURL})
	}
}

// DeleteFile removes a file and its content.
//
// @Summary Delete a file
// @Tags files
// @Param id path string true "file id"
// @Success 204
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /v1/files/{id} [delete]
func DeleteFile(svc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// locationFromQuery reads latitude/longitude query params. ok is false when
// either is missing; err is set when either is not a number.
func locationFromQuery(c *fiber.Ctx) (loc model.Location, ok bool, err error) {
	latRaw, lonRaw := c.Query("latitude"), c.Query("longitude")
	if latRaw == "" || lonRaw == "" {
		return loc, false, nil
	}
	if loc.Latitude, err = strconv.ParseFloat(latRaw, 64); err != nil {
		return loc, true, err
	}
	if loc.Longitude, err = strconv.ParseFloat(lonRaw, 64); err != nil {
		return loc, true, err
	}
	return loc, true, nil
}
