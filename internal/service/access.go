package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"geofyle/internal/config"
	"geofyle/internal/geo"
	"geofyle/internal/metrics"
	"geofyle/internal/model"
	"geofyle/internal/repository"
	"geofyle/internal/storage"
)

// DownloadGrant is issued when a requester is allowed to fetch a file.
type DownloadGrant struct {
	FileID         string    `json:"fileId"`
	DownloadURL    string    `json:"downloadUrl"`
	URLExpiresAt   time.Time `json:"urlExpiresAt"`
	ExpirationTime time.Time `json:"expirationTime"`
	DownloadCount  int64     `json:"downloadCount"`
}

// AccessGate enforces the download geofence and renews a file on each download.
type AccessGate interface {
	// AuthorizeAndRenewDownload grants a download when the file exists, is live and
	// requester is within the configured radius. A grant pushes the expiration out
	// by the retention window and increments the download count.
	//
	// The renewal is a blind overwrite of both fields computed from the value read
	// at the start of the call, so concurrent downloads of one file are
	// last-write-wins and the count may undercount.
	AuthorizeAndRenewDownload(ctx context.Context, fileID string, requester model.Location) (*DownloadGrant, error)
}

type accessGate struct {
	repo   repository.FileRepository
	store  storage.Storage
	policy config.FilePolicy
	opts   options
}

// NewAccessGate constructs a new AccessGate.
func NewAccessGate(repo repository.FileRepository, store storage.Storage, policy config.FilePolicy, opts ...Option) AccessGate {
	return &accessGate{repo: repo, store: store, policy: policy, opts: applyOptions(opts)}
}

func (g *accessGate) AuthorizeAndRenewDownload(ctx context.Context, fileID string, requester model.Location) (*DownloadGrant, error) {
	grant, err := g.authorize(ctx, fileID, requester)
	g.opts.metrics.RecordDownload(downloadResult(err))
	return grant, err
}

func (g *accessGate) authorize(ctx context.Context, fileID string, requester model.Location) (*DownloadGrant, error) {
	if fileID == "" {
		return nil, ErrIDRequired
	}

	rec, err := g.repo.Get(ctx, fileID)
	if err != nil {
		return nil, storeError(err)
	}

	now := g.opts.now()
	if rec.Expired(now) {
		g.opts.log.Info("download of expired file refused", zap.String("file_id", fileID), zap.Int64("ttl", rec.TTL))
		return nil, ErrExpired
	}

	if err := geo.ValidatePoint(requester.Point()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}

	if !geo.WithinRange(requester.Point(), rec.Location.Point(), g.policy.DownloadRadiusMeters) {
		return nil, ErrOutOfRange
	}

	url, err := g.store.PresignGet(ctx, rec.StorageKey(), g.policy.DownloadURLExpiry)
	if err != nil {
		g.opts.log.Error("presign download failed", zap.String("file_id", fileID), zap.Error(err))
		return nil, blobError(err)
	}

	expiration := now.Add(g.policy.Retention()).UTC()
	count := rec.DownloadCount + 1
	updated, err := g.repo.UpdateFields(ctx, fileID, repository.FileUpdate{
		ExpirationTime: &expiration,
		DownloadCount:  &count,
	})
	if err != nil {
		g.opts.log.Error("renew file failed", zap.String("file_id", fileID), zap.Error(err))
		return nil, storeError(err)
	}

	return &DownloadGrant{
		FileID:         fileID,
		DownloadURL:    url,
		URLExpiresAt:   now.Add(g.policy.DownloadURLExpiry).UTC(),
		ExpirationTime: updated.ExpirationTime.UTC(),
		DownloadCount:  updated.DownloadCount,
	}, nil
}

func downloadResult(err error) string {
	switch {
	case err == nil:
		return metrics.DownloadGranted
	case errors.Is(err, ErrNotFound):
		return metrics.DownloadNotFound
	case errors.Is(err, ErrExpired):
		return metrics.DownloadExpired
	case errors.Is(err, ErrOutOfRange):
		return metrics.DownloadOutOfRange
	case errors.Is(err, ErrInvalidInput):
		return metrics.DownloadInvalid
	default:
		return metrics.DownloadError
	}
}
