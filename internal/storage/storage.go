// Package storage contains blob store abstractions for S3-compatible object stores.
// File content never passes through the service: clients upload and download
// directly with time-limited presigned URLs.
package storage

import (
	"context"
	"time"
)

// Storage mints presigned URLs for objects and deletes them.
type Storage interface {
	// PresignPut returns a time-limited URL the client can PUT the object content to.
	// When contentType is not empty the upload must send the same Content-Type.
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	// PresignGet returns a time-limited URL that can be used to download the object without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	// Delete removes an object by key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
