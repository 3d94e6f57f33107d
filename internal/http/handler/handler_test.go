package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"geofyle/internal/http/middleware"
	"geofyle/internal/model"
	"geofyle/internal/repository/postgres"
	"geofyle/internal/service"
	serviceMocks "geofyle/internal/service/mocks"
)

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(postgres.NewFilePostgres(db)))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockFileService)
	app := fiber.New()
	app.Use(middleware.RequestID())
	app.Post("/v1/files", CreateFile(mockSvc))

	post := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/v1/files", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.RequestIDHeader, "rid-1")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	validBody := `{"name":"a.txt","description":"d","size":10,"mimeType":"text/plain","latitude":40.7128,"longitude":-74.006}`

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Create", mock.Anything, mock.MatchedBy(func(in service.CreateFileInput) bool {
			return in.Name == "a.txt" && in.Latitude != nil && *in.Latitude == 40.7128 && in.RetentionHours == nil
		})).Return(&service.UploadResult{
			File:      model.FileView{ID: id, Name: "a.txt"},
			UploadURL: "https://blob/upload",
		}, nil).Once()

		resp := post(validBody)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var res map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.Equal(t, "https://blob/upload", res["uploadUrl"])
		file := res["file"].(map[string]any)
		assert.Equal(t, id, file["id"])
		assert.NotContains(t, file, "spatialKey")
		assert.NotContains(t, file, "ttl")
		mockSvc.AssertExpectations(t)
	})

	t.Run("upload api key names", func(t *testing.T) {
		mockSvc.On("Create", mock.Anything, mock.MatchedBy(func(in service.CreateFileInput) bool {
			return in.Name == "b.png" && in.Size == 2048 && in.MimeType == "image/png"
		})).Return(&service.UploadResult{
			File:      model.FileView{ID: uuid.NewString(), Name: "b.png"},
			UploadURL: "https://blob/upload",
		}, nil).Once()

		resp := post(`{"name":"b.png","description":"d","fileSize":2048,"contentType":"image/png","latitude":1,"longitude":2}`)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	tests := []struct {
		name       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{name: "missing fields", svcErr: service.ErrMissingFields, wantStatus: http.StatusBadRequest, wantCode: "MISSING_PARAMETERS"},
		{name: "invalid coordinates", svcErr: service.ErrInvalidCoordinates, wantStatus: http.StatusBadRequest, wantCode: "INVALID_COORDINATES"},
		{name: "too large", svcErr: service.ErrSizeExceeded, wantStatus: http.StatusRequestEntityTooLarge, wantCode: "FILE_TOO_LARGE"},
		{name: "blob failure", svcErr: service.ErrBlobFailure, wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
		{name: "store failure", svcErr: errors.Join(service.ErrStoreFailure, errors.New("pq: secret detail")), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc.On("Create", mock.Anything, mock.Anything).Return(nil, tt.svcErr).Once()

			resp := post(validBody)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decodeError(t, resp)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, "rid-1", body.RequestID)
			assert.NotContains(t, body.Error.Message, "secret detail")
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		resp := post(`{"name":`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "MISSING_PARAMETERS", decodeError(t, resp).Error.Code)
	})
}

func TestFindNearby(t *testing.T) {
	mockEngine := new(serviceMocks.MockSearchEngine)
	app := fiber.New()
	app.Get("/v1/files/nearby", FindNearby(mockEngine))

	get := func(query string) *http.Response {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/files/nearby"+query, nil))
		require.NoError(t, err)
		return resp
	}

	t.Run("explicit radius", func(t *testing.T) {
		center := model.Location{Latitude: 40, Longitude: -74}
		mockEngine.On("FindNearby", mock.Anything, center, 250.0).
			Return([]model.FileView{{ID: "a"}, {ID: "b"}}, nil).Once()

		resp := get("?latitude=40&longitude=-74&radius=250")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var files []model.FileView
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&files))
		assert.Len(t, files, 2)
		mockEngine.AssertExpectations(t)
	})

	t.Run("default radius", func(t *testing.T) {
		mockEngine.On("DefaultRadius").Return(100.0).Once()
		mockEngine.On("FindNearby", mock.Anything, model.Location{Latitude: 1.5, Longitude: 2.5}, 100.0).
			Return([]model.FileView{}, nil).Once()

		resp := get("?latitude=1.5&longitude=2.5")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		assert.Equal(t, "[]", buf.String())
		mockEngine.AssertExpectations(t)
	})

	t.Run("missing coordinates", func(t *testing.T) {
		resp := get("?latitude=40")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "MISSING_PARAMETERS", decodeError(t, resp).Error.Code)
	})

	t.Run("non numeric coordinates", func(t *testing.T) {
		resp := get("?latitude=north&longitude=-74")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_COORDINATES", decodeError(t, resp).Error.Code)
	})

	t.Run("non numeric radius", func(t *testing.T) {
		resp := get("?latitude=40&longitude=-74&radius=far")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_RADIUS", decodeError(t, resp).Error.Code)
	})

	t.Run("out of range latitude", func(t *testing.T) {
		mockEngine.On("FindNearby", mock.Anything, model.Location{Latitude: 100, Longitude: -74}, 50.0).
			Return(nil, service.ErrInvalidCoordinates).Once()

		resp := get("?latitude=100&longitude=-74&radius=50")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_COORDINATES", decodeError(t, resp).Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockEngine.On("FindNearby", mock.Anything, mock.Anything, 50.0).
			Return(nil, service.ErrStoreFailure).Once()

		resp := get("?latitude=40&longitude=-74&radius=50")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestGetFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockFileService)
	app := fiber.New()
	app.Get("/v1/files/:id", GetFile(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Get", mock.Anything, id).Return(&model.FileView{ID: id, Name: "a.txt"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/v1/files/"+id, nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var result model.FileView
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, id, result.ID)
		mockSvc.AssertExpectations(t)
	})

	for _, svcErr := range []error{service.ErrNotFound, service.ErrExpired} {
		t.Run("hidden: "+svcErr.Error(), func(t *testing.T) {
			id := uuid.NewString()
			mockSvc.On("Get", mock.Anything, id).Return(nil, svcErr).Once()

			resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/v1/files/"+id, nil))

			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			assert.Equal(t, "FILE_NOT_FOUND", decodeError(t, resp).Error.Code)
			mockSvc.AssertExpectations(t)
		})
	}

	t.Run("invalid id", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/v1/files/invalid-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Get", mock.Anything, id).Return(nil, errors.New("db error")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/v1/files/"+id, nil))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestDownloadFile(t *testing.T) {
	mockGate := new(serviceMocks.MockAccessGate)
	app := fiber.New()
	app.Get("/v1/files/:id/download", DownloadFile(mockGate))

	id := uuid.NewString()
	requester := model.Location{Latitude: 40.7129, Longitude: -74.0061}
	url := "/v1/files/" + id + "/download?latitude=40.7129&longitude=-74.0061"

	t.Run("granted", func(t *testing.T) {
		mockGate.On("AuthorizeAndRenewDownload", mock.Anything, id, requester).Return(&service.DownloadGrant{
			FileID:        id,
			DownloadURL:   "https://blob/download",
			URLExpiresAt:  time.Now().Add(5 * time.Minute),
			DownloadCount: 1,
		}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, url, nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, map[string]string{"downloadUrl": "https://blob/download"}, body)
		mockGate.AssertExpectations(t)
	})

	tests := []struct {
		name       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{name: "out of range", svcErr: service.ErrOutOfRange, wantStatus: http.StatusForbidden, wantCode: "OUT_OF_RANGE"},
		{name: "not found", svcErr: service.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: "FILE_NOT_FOUND"},
		{name: "expired", svcErr: service.ErrExpired, wantStatus: http.StatusNotFound, wantCode: "FILE_NOT_FOUND"},
		{name: "invalid location", svcErr: service.ErrInvalidLocation, wantStatus: http.StatusBadRequest, wantCode: "INVALID_COORDINATES"},
		{name: "blob failure", svcErr: service.ErrBlobFailure, wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockGate.On("AuthorizeAndRenewDownload", mock.Anything, id, requester).Return(nil, tt.svcErr).Once()

			resp, _ := app.Test(httptest.NewRequest(http.MethodGet, url, nil))

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
			mockGate.AssertExpectations(t)
		})
	}

	t.Run("missing requester location", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/v1/files/"+id+"/download", nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "MISSING_PARAMETERS", decodeError(t, resp).Error.Code)
	})
}

func TestDeleteFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockFileService)
	app := fiber.New()
	app.Delete("/v1/files/:id", DeleteFile(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Delete", mock.Anything, id).Return(nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/v1/files/"+id, nil))

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Delete", mock.Anything, id).Return(service.ErrNotFound).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/v1/files/"+id, nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "FILE_NOT_FOUND", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Delete", mock.Anything, id).Return(errors.New("delete error")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/v1/files/"+id, nil))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestAuthenticate(t *testing.T) {
	mockAuth := new(serviceMocks.MockAuthService)
	app := fiber.New()
	app.Post("/v1/auth", Authenticate(mockAuth))

	post := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("success", func(t *testing.T) {
		exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		mockAuth.On("Authenticate", mock.Anything, "device-1").Return(&service.Token{Token: "tok", ExpiresAt: exp}, nil).Once()

		resp := post(`{"deviceId":"device-1"}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var tok service.Token
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
		assert.Equal(t, "tok", tok.Token)
		assert.True(t, exp.Equal(tok.ExpiresAt))
		mockAuth.AssertExpectations(t)
	})

	t.Run("missing device id", func(t *testing.T) {
		mockAuth.On("Authenticate", mock.Anything, "").Return(nil, service.ErrIDRequired).Once()

		resp := post(`{}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "MISSING_DEVICE_ID", decodeError(t, resp).Error.Code)
	})
}

func TestRouting(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})

	mockFiles := new(serviceMocks.MockFileService)
	mockAuth := new(serviceMocks.MockAuthService)
	mockEngine := new(serviceMocks.MockSearchEngine)
	RegisterRoutes(app, Services{
		Files:       mockFiles,
		Search:      mockEngine,
		Gate:        new(serviceMocks.MockAccessGate),
		Auth:        mockAuth,
		RequireAuth: true,
	})

	t.Run("not found route", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/non-existent", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/healthz", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp).Error.Code)
	})

	t.Run("files require a token", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/v1/files/"+uuid.NewString(), nil))

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", decodeError(t, resp).Error.Code)
	})

	t.Run("nearby is not routed as an id", func(t *testing.T) {
		mockAuth.On("Verify", "tok").Return("device-1", nil).Once()
		mockEngine.On("FindNearby", mock.Anything, model.Location{Latitude: 1, Longitude: 2}, 10.0).
			Return([]model.FileView{}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/v1/files/nearby?latitude=1&longitude=2&radius=10", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer tok")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockEngine.AssertExpectations(t)
		mockFiles.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("auth route is public", func(t *testing.T) {
		mockAuth.On("Authenticate", mock.Anything, "device-9").Return(&service.Token{Token: "t"}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/v1/auth", strings.NewReader(`{"deviceId":"device-9"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockAuth.AssertExpectations(t)
	})
}
