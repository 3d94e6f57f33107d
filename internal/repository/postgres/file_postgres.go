package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"geofyle/internal/model"
	"geofyle/internal/repository"
)

// FilePostgres is a PostgreSQL implementation of repository.FileRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type FilePostgres struct {
	db *sql.DB
}

// NewFilePostgres creates a new FilePostgres repository.
func NewFilePostgres(db *sql.DB) *FilePostgres {
	return &FilePostgres{db: db}
}

var _ repository.FileRepository = (*FilePostgres)(nil)

const fileColumns = `id, name, description, size, mime_type, latitude, longitude, spatial_key,
		upload_time, expiration_time, ttl, download_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(s rowScanner) (*model.FileRecord, error) {
	var f model.FileRecord
	if err := s.Scan(
		&f.ID,
		&f.Name,
		&f.Description,
		&f.Size,
		&f.MimeType,
		&f.Location.Latitude,
		&f.Location.Longitude,
		&f.SpatialKey,
		&f.UploadTime,
		&f.ExpirationTime,
		&f.TTL,
		&f.DownloadCount,
	); err != nil {
		return nil, err
	}
	f.UploadTime = f.UploadTime.UTC()
	f.ExpirationTime = f.ExpirationTime.UTC()
	return &f, nil
}

// Get fetches a single record by its ID.
func (r *FilePostgres) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	const q = `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	f, err := scanFile(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Put upserts the full record.
func (r *FilePostgres) Put(ctx context.Context, f *model.FileRecord) error {
	const q = `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			size = EXCLUDED.size,
			mime_type = EXCLUDED.mime_type,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			spatial_key = EXCLUDED.spatial_key,
			upload_time = EXCLUDED.upload_time,
			expiration_time = EXCLUDED.expiration_time,
			ttl = EXCLUDED.ttl,
			download_count = EXCLUDED.download_count
	`
	_, err := r.db.ExecContext(ctx, q,
		f.ID,
		f.Name,
		f.Description,
		f.Size,
		f.MimeType,
		f.Location.Latitude,
		f.Location.Longitude,
		f.SpatialKey,
		f.UploadTime,
		f.ExpirationTime,
		f.TTL,
		f.DownloadCount,
	)
	return err
}

// UpdateFields overwrites the non-nil fields of upd and returns the stored row.
func (r *FilePostgres) UpdateFields(ctx context.Context, id string, upd repository.FileUpdate) (*model.FileRecord, error) {
	const q = `
		UPDATE files SET
			expiration_time = COALESCE($2, expiration_time),
			ttl = COALESCE($3, ttl),
			download_count = COALESCE($4, download_count)
		WHERE id = $1
		RETURNING ` + fileColumns

	var exp sql.NullTime
	var ttl, count sql.NullInt64
	if upd.ExpirationTime != nil {
		exp = sql.NullTime{Time: upd.ExpirationTime.UTC(), Valid: true}
		ttl = sql.NullInt64{Int64: upd.ExpirationTime.Unix(), Valid: true}
	}
	if upd.DownloadCount != nil {
		count = sql.NullInt64{Int64: *upd.DownloadCount, Valid: true}
	}

	f, err := scanFile(r.db.QueryRowContext(ctx, q, id, exp, ttl, count))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a record by ID. It does not return an error if the row does not exist.
func (r *FilePostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM files WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// QueryBySpatialKey returns every row stored under key, oldest upload first.
func (r *FilePostgres) QueryBySpatialKey(ctx context.Context, key string) ([]*model.FileRecord, error) {
	const q = `SELECT ` + fileColumns + ` FROM files WHERE spatial_key = $1 ORDER BY upload_time, id`
	return r.list(ctx, q, key)
}

// ScanExpired returns every row whose ttl is at or before nowEpoch.
func (r *FilePostgres) ScanExpired(ctx context.Context, nowEpoch int64) ([]*model.FileRecord, error) {
	const q = `SELECT ` + fileColumns + ` FROM files WHERE ttl <= $1 ORDER BY ttl, id`
	return r.list(ctx, q, nowEpoch)
}

func (r *FilePostgres) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *FilePostgres) list(ctx context.Context, q string, args ...any) ([]*model.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*model.FileRecord, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// DevicePostgres is a PostgreSQL implementation of repository.DeviceRepository.
type DevicePostgres struct {
	db *sql.DB
}

// NewDevicePostgres creates a new DevicePostgres repository.
func NewDevicePostgres(db *sql.DB) *DevicePostgres {
	return &DevicePostgres{db: db}
}

var _ repository.DeviceRepository = (*DevicePostgres)(nil)

// Touch inserts the device on first sight and bumps last_authenticated otherwise.
func (r *DevicePostgres) Touch(ctx context.Context, deviceID string, now time.Time) (*model.Device, error) {
	const q = `
		INSERT INTO devices (device_id, created_at, last_authenticated)
		VALUES ($1, $2, $2)
		ON CONFLICT (device_id) DO UPDATE SET last_authenticated = EXCLUDED.last_authenticated
		RETURNING device_id, created_at, last_authenticated
	`
	var d model.Device
	if err := r.db.QueryRowContext(ctx, q, deviceID, now.UTC()).Scan(
		&d.DeviceID,
		&d.CreatedAt,
		&d.LastAuthenticated,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
