package repository

import (
	"context"
	"errors"
	"time"

	"geofyle/internal/model"
)

// ErrNotFound is returned by adapters when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// FileRepository defines data access for file records.
// No business logic here: strictly persistence operations.
type FileRepository interface {
	// Get returns a record by ID or ErrNotFound.
	Get(ctx context.Context, id string) (*model.FileRecord, error)

	// Put writes the full record in one call, replacing any record with the same ID.
	Put(ctx context.Context, rec *model.FileRecord) error

	// UpdateFields overwrites only the fields set in upd and returns the stored record.
	// It is a blind write: no condition on the previous values.
	UpdateFields(ctx context.Context, id string, upd FileUpdate) (*model.FileRecord, error)

	// Delete removes a record by ID. It returns nil if the record did not exist.
	Delete(ctx context.Context, id string) error

	// QueryBySpatialKey returns every record stored under the exact spatial key.
	QueryBySpatialKey(ctx context.Context, key string) ([]*model.FileRecord, error)

	// ScanExpired returns every record whose TTL is <= nowEpoch.
	ScanExpired(ctx context.Context, nowEpoch int64) ([]*model.FileRecord, error)

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}

// FileUpdate lists the mutable fields of a record. Nil fields are left untouched.
// Setting ExpirationTime also sets the TTL to its epoch seconds.
type FileUpdate struct {
	ExpirationTime *time.Time
	DownloadCount  *int64
}

// Empty reports whether the update changes nothing.
func (u FileUpdate) Empty() bool {
	return u.ExpirationTime == nil && u.DownloadCount == nil
}

// Apply writes the update onto rec.
func (u FileUpdate) Apply(rec *model.FileRecord) {
	if u.ExpirationTime != nil {
		rec.SetExpiration(*u.ExpirationTime)
	}
	if u.DownloadCount != nil {
		rec.DownloadCount = *u.DownloadCount
	}
}

// DeviceRepository persists registered devices.
type DeviceRepository interface {
	// Touch creates the device if it is unknown and records now as its last authentication.
	Touch(ctx context.Context, deviceID string, now time.Time) (*model.Device, error)
}
