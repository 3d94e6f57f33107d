package model

import (
	"time"

	"geofyle/internal/geo"
)

// StorageKeyPrefix is prepended to the file ID to form the blob object key.
const StorageKeyPrefix = "files/"

// Location is a latitude/longitude pair in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point converts the location into the geo package representation.
func (l Location) Point() geo.Point {
	return geo.Point{Latitude: l.Latitude, Longitude: l.Longitude}
}

// FileRecord is the persisted metadata of a location-bound file.
// This is a pure domain model; adapters map it to their own wire shape.
// SpatialKey and TTL are internal and never leave the service.
type FileRecord struct {
	ID             string
	Name           string
	Description    string
	Size           int64
	MimeType       string
	Location       Location
	SpatialKey     string
	UploadTime     time.Time
	ExpirationTime time.Time
	TTL            int64
	DownloadCount  int64
}

// SetLocation stores loc and recomputes the spatial key with the given precision.
func (f *FileRecord) SetLocation(loc Location, precision int) error {
	key, err := geo.SpatialKey(loc.Latitude, loc.Longitude, precision)
	if err != nil {
		return err
	}
	f.Location = loc
	f.SpatialKey = key
	return nil
}

// SetExpiration stores the expiration instant and keeps TTL in sync with it.
func (f *FileRecord) SetExpiration(t time.Time) {
	f.ExpirationTime = t.UTC()
	f.TTL = t.Unix()
}

// Expired reports whether the record's TTL has been reached at now.
func (f *FileRecord) Expired(now time.Time) bool {
	return f.TTL <= now.Unix()
}

// StorageKey returns the blob key the file content lives under.
func (f *FileRecord) StorageKey() string {
	return StorageKeyPrefix + f.ID
}

// View returns the public representation of the record.
func (f *FileRecord) View() FileView {
	return FileView{
		ID:             f.ID,
		Name:           f.Name,
		Description:    f.Description,
		Size:           f.Size,
		MimeType:       f.MimeType,
		Location:       f.Location,
		UploadTime:     f.UploadTime.UTC(),
		ExpirationTime: f.ExpirationTime.UTC(),
		DownloadCount:  f.DownloadCount,
	}
}

// FileView is the shape returned to clients.
type FileView struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Size           int64     `json:"size"`
	MimeType       string    `json:"mimeType"`
	Location       Location  `json:"location"`
	UploadTime     time.Time `json:"uploadTime"`
	ExpirationTime time.Time `json:"expirationTime"`
	DownloadCount  int64     `json:"downloadCount"`
}
