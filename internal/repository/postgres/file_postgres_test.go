package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"geofyle/internal/model"
	"geofyle/internal/repository"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fileCols = []string{
	"id", "name", "description", "size", "mime_type", "latitude", "longitude", "spatial_key",
	"upload_time", "expiration_time", "ttl", "download_count",
}

func sampleRecord() *model.FileRecord {
	up := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f := &model.FileRecord{
		ID:          "file-1",
		Name:        "photo.jpg",
		Description: "sunset",
		Size:        1024,
		MimeType:    "image/jpeg",
		Location:    model.Location{Latitude: 40.7128, Longitude: -74.006},
		SpatialKey:  "130.71280:105.99400",
		UploadTime:  up,
	}
	f.SetExpiration(up.Add(30 * 24 * time.Hour))
	return f
}

func addRecordRow(rows *sqlmock.Rows, f *model.FileRecord) *sqlmock.Rows {
	return rows.AddRow(f.ID, f.Name, f.Description, f.Size, f.MimeType, f.Location.Latitude, f.Location.Longitude,
		f.SpatialKey, f.UploadTime, f.ExpirationTime, f.TTL, f.DownloadCount)
}

func TestFilePostgres_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewFilePostgres(db)
	ctx := context.Background()
	rec := sampleRecord()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM files WHERE id = ?").
			WithArgs("file-1").
			WillReturnRows(addRecordRow(sqlmock.NewRows(fileCols), rec))

		got, err := repo.Get(ctx, "file-1")

		assert.NoError(t, err)
		assert.Equal(t, rec, got)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM files WHERE id = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		got, err := repo.Get(ctx, "missing")

		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, got)
	})

	t.Run("driver error", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM files WHERE id = ?").
			WithArgs("boom").
			WillReturnError(errors.New("conn reset"))

		got, err := repo.Get(ctx, "boom")

		assert.EqualError(t, err, "conn reset")
		assert.Nil(t, got)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilePostgres_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFilePostgres(db)
	rec := sampleRecord()

	mock.ExpectExec("INSERT INTO files").
		WithArgs(rec.ID, rec.Name, rec.Description, rec.Size, rec.MimeType, rec.Location.Latitude,
			rec.Location.Longitude, rec.SpatialKey, rec.UploadTime, rec.ExpirationTime, rec.TTL, rec.DownloadCount).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Put(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilePostgres_UpdateFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFilePostgres(db)
	ctx := context.Background()

	tests := []struct {
		name       string
		id         string
		upd        func() repository.FileUpdate
		setupMocks func(want *model.FileRecord)
		wantErr    error
	}{
		{
			name: "renewal writes expiration ttl and count",
			id:   "file-1",
			upd: func() repository.FileUpdate {
				exp := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
				count := int64(4)
				return repository.FileUpdate{ExpirationTime: &exp, DownloadCount: &count}
			},
			setupMocks: func(want *model.FileRecord) {
				exp := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
				want.SetExpiration(exp)
				want.DownloadCount = 4
				mock.ExpectQuery("UPDATE files SET").
					WithArgs("file-1", exp, exp.Unix(), int64(4)).
					WillReturnRows(addRecordRow(sqlmock.NewRows(fileCols), want))
			},
		},
		{
			name: "count only leaves expiration untouched",
			id:   "file-1",
			upd: func() repository.FileUpdate {
				count := int64(9)
				return repository.FileUpdate{DownloadCount: &count}
			},
			setupMocks: func(want *model.FileRecord) {
				want.DownloadCount = 9
				mock.ExpectQuery("UPDATE files SET").
					WithArgs("file-1", nil, nil, int64(9)).
					WillReturnRows(addRecordRow(sqlmock.NewRows(fileCols), want))
			},
		},
		{
			name: "missing row",
			id:   "missing",
			upd:  func() repository.FileUpdate { return repository.FileUpdate{} },
			setupMocks: func(_ *model.FileRecord) {
				mock.ExpectQuery("UPDATE files SET").
					WithArgs("missing", nil, nil, nil).
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: repository.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := sampleRecord()
			tt.setupMocks(want)

			got, err := repo.UpdateFields(ctx, tt.id, tt.upd())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilePostgres_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFilePostgres(db)

	mock.ExpectExec("DELETE FROM files WHERE id = ?").
		WithArgs("file-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Delete(context.Background(), "file-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilePostgres_QueryBySpatialKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFilePostgres(db)
	rec := sampleRecord()
	other := sampleRecord()
	other.ID = "file-2"

	mock.ExpectQuery("SELECT (.+) FROM files WHERE spatial_key = (.+) ORDER BY").
		WithArgs(rec.SpatialKey).
		WillReturnRows(addRecordRow(addRecordRow(sqlmock.NewRows(fileCols), rec), other))

	got, err := repo.QueryBySpatialKey(context.Background(), rec.SpatialKey)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "file-1", got[0].ID)
	assert.Equal(t, "file-2", got[1].ID)

	mock.ExpectQuery("SELECT (.+) FROM files WHERE spatial_key = (.+) ORDER BY").
		WithArgs("empty").
		WillReturnRows(sqlmock.NewRows(fileCols))

	got, err = repo.QueryBySpatialKey(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilePostgres_ScanExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewFilePostgres(db)
	rec := sampleRecord()

	mock.ExpectQuery("SELECT (.+) FROM files WHERE ttl <= (.+)").
		WithArgs(int64(1_800_000_000)).
		WillReturnRows(addRecordRow(sqlmock.NewRows(fileCols), rec))

	got, err := repo.ScanExpired(context.Background(), 1_800_000_000)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	mock.ExpectQuery("SELECT (.+) FROM files WHERE ttl <= (.+)").
		WithArgs(int64(1)).
		WillReturnError(errors.New("timeout"))

	got, err = repo.ScanExpired(context.Background(), 1)
	assert.EqualError(t, err, "timeout")
	assert.Nil(t, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDevicePostgres_Touch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDevicePostgres(db)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)

	mock.ExpectQuery("INSERT INTO devices").
		WithArgs("dev-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "created_at", "last_authenticated"}).
			AddRow("dev-1", created, now))

	d, err := repo.Touch(context.Background(), "dev-1", now)

	require.NoError(t, err)
	assert.Equal(t, "dev-1", d.DeviceID)
	assert.Equal(t, created, d.CreatedAt)
	assert.Equal(t, now, d.LastAuthenticated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
