package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"geofyle/internal/config"
	"geofyle/internal/model"
	"geofyle/internal/repository"
	"geofyle/internal/storage"
)

// SweepFailure records one expired file the sweep could not delete.
type SweepFailure struct {
	ID  string
	Err error
}

// SweepReport is the result of one sweep.
type SweepReport struct {
	DeletedIDs []string
	Failures   []SweepFailure
	Duration   time.Duration
}

// Deleted returns the number of files removed.
func (r *SweepReport) Deleted() int { return len(r.DeletedIDs) }

// Failed returns the number of files that could not be removed.
func (r *SweepReport) Failed() int { return len(r.Failures) }

// Sweeper evicts expired files and their blobs. Sweep is a pure function of the
// now argument; Start schedules it with cron.
type Sweeper struct {
	repo        repository.FileRepository
	store       storage.Storage
	schedule    string
	concurrency int
	opts        options

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper constructs a Sweeper.
func NewSweeper(repo repository.FileRepository, store storage.Storage, cfg config.SweepConfig, opts ...Option) *Sweeper {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Sweeper{
		repo:        repo,
		store:       store,
		schedule:    cfg.Schedule,
		concurrency: concurrency,
		opts:        applyOptions(opts),
	}
}

// Sweep deletes every file whose TTL is <= now. A failure on one file is
// recorded and the sweep moves on; only a failed scan aborts it.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	start := time.Now()

	expired, err := s.repo.ScanExpired(ctx, now.Unix())
	if err != nil {
		s.opts.log.Error("sweep scan failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	report := &SweepReport{DeletedIDs: []string{}, Failures: []SweepFailure{}}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, rec := range expired {
		rec := rec
		g.Go(func() error {
			err := s.evict(ctx, rec)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.opts.log.Warn("sweep failed to delete file", zap.String("file_id", rec.ID), zap.Error(err))
				report.Failures = append(report.Failures, SweepFailure{ID: rec.ID, Err: err})
				return nil
			}
			report.DeletedIDs = append(report.DeletedIDs, rec.ID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.DeletedIDs)
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].ID < report.Failures[j].ID })
	report.Duration = time.Since(start)

	s.opts.metrics.RecordSweep(report.Deleted(), report.Failed(), report.Duration)
	s.opts.log.Info("sweep completed",
		zap.Int("scanned", len(expired)),
		zap.Int("deleted", report.Deleted()),
		zap.Int("failed", report.Failed()),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (s *Sweeper) evict(ctx context.Context, rec *model.FileRecord) error {
	if err := s.store.Delete(ctx, rec.StorageKey()); err != nil {
		return blobError(err)
	}
	if err := s.repo.Delete(ctx, rec.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return nil
}

// RunOnce sweeps at the current time. Concurrent calls are serialized.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Sweep(ctx, s.opts.now())
}

// Start schedules RunOnce on the configured cron spec.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.schedule == "" {
		return errors.New("sweep schedule is empty")
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.opts.log.Error("scheduled sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("parse sweep schedule %q: %w", s.schedule, err)
	}
	s.cron = c
	c.Start()
	s.opts.log.Info("sweeper started", zap.String("schedule", s.schedule), zap.Int("concurrency", s.concurrency))
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.opts.log.Info("sweeper stopped")
}
