package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"geofyle/internal/config"
	"geofyle/internal/model"
	"geofyle/internal/repository"
	"geofyle/internal/storage"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// maxRetentionHours is the longest retention that still fits in a time.Duration.
const maxRetentionHours = float64(math.MaxInt64 / int64(time.Hour))

// CreateFileInput is the metadata a client submits before uploading content.
// Coordinates are pointers so that 0 is distinguishable from a missing value.
type CreateFileInput struct {
	Name           string   `json:"name" validate:"required"`
	Description    string   `json:"description" validate:"required"`
	Size           int64    `json:"size" validate:"gt=0"`
	MimeType       string   `json:"mimeType" validate:"required"`
	Latitude       *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude      *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	RetentionHours *float64 `json:"retentionHours,omitempty" validate:"omitempty,gt=0"`
}

// UnmarshalJSON also accepts fileSize and contentType as names for size and
// mimeType. The canonical key wins when both are sent.
func (in *CreateFileInput) UnmarshalJSON(b []byte) error {
	type plain CreateFileInput
	var aux struct {
		plain
		FileSize    *int64  `json:"fileSize"`
		ContentType *string `json:"contentType"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*in = CreateFileInput(aux.plain)
	if in.Size == 0 && aux.FileSize != nil {
		in.Size = *aux.FileSize
	}
	if in.MimeType == "" && aux.ContentType != nil {
		in.MimeType = *aux.ContentType
	}
	return nil
}

// UploadResult is returned by Create: the stored file and the URL to PUT its content to.
type UploadResult struct {
	File      model.FileView `json:"file"`
	UploadURL string         `json:"uploadUrl"`
}

// FileService defines the file lifecycle use cases outside of discovery and download.
type FileService interface {
	// Create validates the input, mints an upload URL and stores the record in one write.
	Create(ctx context.Context, in CreateFileInput) (*UploadResult, error)

	// Get returns the public view of a live file.
	Get(ctx context.Context, id string) (*model.FileView, error)

	// Delete removes the blob, then the record.
	Delete(ctx context.Context, id string) error
}

type fileService struct {
	repo   repository.FileRepository
	store  storage.Storage
	policy config.FilePolicy
	opts   options
}

// NewFileService constructs a new FileService.
func NewFileService(repo repository.FileRepository, store storage.Storage, policy config.FilePolicy, opts ...Option) FileService {
	return &fileService{repo: repo, store: store, policy: policy, opts: applyOptions(opts)}
}

func (s *fileService) Create(ctx context.Context, in CreateFileInput) (*UploadResult, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	if s.policy.MaxFileSizeBytes > 0 && in.Size > s.policy.MaxFileSizeBytes {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrSizeExceeded, in.Size, s.policy.MaxFileSizeBytes)
	}

	retention := s.policy.Retention()
	if in.RetentionHours != nil {
		retention = time.Duration(*in.RetentionHours * float64(time.Hour))
	}

	now := s.opts.now().UTC()
	rec := &model.FileRecord{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Size:        in.Size,
		MimeType:    in.MimeType,
		UploadTime:  now,
	}
	loc := model.Location{Latitude: *in.Latitude, Longitude: *in.Longitude}
	if err := rec.SetLocation(loc, s.opts.precision); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	rec.SetExpiration(now.Add(retention))

	uploadURL, err := s.store.PresignPut(ctx, rec.StorageKey(), rec.MimeType, s.policy.UploadURLExpiry)
	if err != nil {
		s.opts.log.Error("presign upload failed", zap.String("file_id", rec.ID), zap.Error(err))
		return nil, blobError(err)
	}

	if err := s.repo.Put(ctx, rec); err != nil {
		s.opts.log.Error("store file record failed", zap.String("file_id", rec.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	return &UploadResult{File: rec.View(), UploadURL: uploadURL}, nil
}

// Get returns a file by ID. Expired files are reported with ErrExpired.
func (s *fileService) Get(ctx context.Context, id string) (*model.FileView, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if rec.Expired(s.opts.now()) {
		return nil, ErrExpired
	}
	view := rec.View()
	return &view, nil
}

// Delete removes a file from storage, then deletes its record.
func (s *fileService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return storeError(err)
	}
	// Blob first; if this fails the record stays so the delete can be retried.
	if err := s.store.Delete(ctx, rec.StorageKey()); err != nil {
		s.opts.log.Error("delete blob failed", zap.String("file_id", id), zap.Error(err))
		return blobError(err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.opts.log.Error("delete file record failed", zap.String("file_id", id), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return nil
}

// validateCreate maps validator failures onto the service error taxonomy.
func validateCreate(in CreateFileInput) error {
	err := validate.Struct(in)
	if err == nil {
		if in.RetentionHours != nil && !(*in.RetentionHours <= maxRetentionHours) {
			return fmt.Errorf("%w: retentionHours must not exceed %.0f", ErrInvalidInput, maxRetentionHours)
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrMissingFields, err)
	}

	var missing []string
	for _, fe := range verrs {
		switch {
		case (fe.Field() == "Latitude" || fe.Field() == "Longitude") && fe.Tag() != "required":
			return fmt.Errorf("%w: %s out of range", ErrInvalidCoordinates, strings.ToLower(fe.Field()))
		case fe.Field() == "RetentionHours":
			return fmt.Errorf("%w: retentionHours must be bigger than 0", ErrInvalidInput)
		default:
			missing = append(missing, jsonFieldName(fe.Field()))
		}
	}
	return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
}

func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
