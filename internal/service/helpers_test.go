package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"geofyle/internal/config"
	"geofyle/internal/geo"
	"geofyle/internal/model"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testPolicy() config.FilePolicy {
	return config.FilePolicy{
		MaxFileSizeBytes:     5242880,
		RetentionDays:        1,
		DefaultRadiusMeters:  100,
		DownloadRadiusMeters: 100,
		UploadURLExpiry:      time.Hour,
		DownloadURLExpiry:    5 * time.Minute,
	}
}

func float64Ptr(v float64) *float64 { return &v }

// newRecord builds a live record at (lat, lon) expiring expiresIn after testNow.
func newRecord(t *testing.T, id string, lat, lon float64, expiresIn time.Duration) *model.FileRecord {
	t.Helper()
	rec := &model.FileRecord{
		ID:          id,
		Name:        "file-" + id,
		Description: "description of " + id,
		Size:        42,
		MimeType:    "text/plain",
		UploadTime:  testNow.Add(-time.Hour),
	}
	require.NoError(t, rec.SetLocation(model.Location{Latitude: lat, Longitude: lon}, geo.DefaultPrecision))
	rec.SetExpiration(testNow.Add(expiresIn))
	return rec
}

func viewIDs(views []model.FileView) []string {
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	return ids
}

// stubSampler returns a fixed key list regardless of the query.
type stubSampler struct {
	keys []string
}

func (s stubSampler) CandidateKeys(geo.Point, float64) ([]string, error) {
	return append([]string(nil), s.keys...), nil
}
