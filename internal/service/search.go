package service

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"geofyle/internal/geo"
	"geofyle/internal/model"
	"geofyle/internal/repository"
)

const tracerName = "geofyle/internal/service"

// SearchEngine answers "which live files are within r meters of this point".
type SearchEngine interface {
	// FindNearby returns the live files within radiusMeters of center.
	// Files whose spatial key is not among the sampled candidate keys are not found.
	FindNearby(ctx context.Context, center model.Location, radiusMeters float64) ([]model.FileView, error)

	// DefaultRadius is the radius used when the caller does not provide one.
	DefaultRadius() float64
}

type searchEngine struct {
	repo          repository.FileRepository
	sampler       geo.Sampler
	defaultRadius float64
	opts          options
}

// NewSearchEngine constructs a SearchEngine probing the keys produced by sampler.
func NewSearchEngine(repo repository.FileRepository, sampler geo.Sampler, defaultRadius float64, opts ...Option) SearchEngine {
	return &searchEngine{repo: repo, sampler: sampler, defaultRadius: defaultRadius, opts: applyOptions(opts)}
}

func (e *searchEngine) DefaultRadius() float64 {
	return e.defaultRadius
}

func (e *searchEngine) FindNearby(ctx context.Context, center model.Location, radiusMeters float64) ([]model.FileView, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "SearchEngine.FindNearby")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("geo.latitude", center.Latitude),
		attribute.Float64("geo.longitude", center.Longitude),
		attribute.Float64("geo.radius_m", radiusMeters),
	)

	if err := geo.ValidatePoint(center.Point()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters <= 0 {
		return nil, ErrInvalidRadius
	}

	keys, err := e.sampler.CandidateKeys(center.Point(), radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	span.SetAttributes(attribute.Int("geo.candidate_keys", len(keys)))
	e.opts.metrics.RecordNearby(len(keys))

	// Each goroutine owns one slot; the join below is the only read.
	buckets := make([][]*model.FileRecord, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			recs, err := e.repo.QueryBySpatialKey(gctx, key)
			if err != nil {
				return fmt.Errorf("query spatial key %s: %w", key, err)
			}
			buckets[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store query failed")
		e.opts.log.Error("nearby query failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	now := e.opts.now()
	seen := make(map[string]struct{})
	out := make([]model.FileView, 0)
	for _, recs := range buckets {
		for _, rec := range recs {
			if rec == nil || rec.Expired(now) {
				continue
			}
			if !geo.WithinRange(center.Point(), rec.Location.Point(), radiusMeters) {
				continue
			}
			// Location and expiry belong to the record, so a copy returned by
			// another bucket would have been filtered the same way.
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			out = append(out, rec.View())
		}
	}

	span.SetAttributes(attribute.Int("geo.results", len(out)))
	return out, nil
}
