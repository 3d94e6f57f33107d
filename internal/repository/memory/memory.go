// Package memory is a thread-safe in-memory record store, useful for tests and
// local runs without external infrastructure.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"geofyle/internal/model"
	"geofyle/internal/repository"
)

// Store implements repository.FileRepository and repository.DeviceRepository.
type Store struct {
	mu      sync.RWMutex
	files   map[string]model.FileRecord
	devices map[string]model.Device
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		files:   make(map[string]model.FileRecord),
		devices: make(map[string]model.Device),
	}
}

var (
	_ repository.FileRepository   = (*Store)(nil)
	_ repository.DeviceRepository = (*Store)(nil)
)

// Get returns a copy of the record so callers cannot mutate stored state.
func (s *Store) Get(_ context.Context, id string) (*model.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) Put(_ context.Context, rec *model.FileRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("memory: record id must not be empty")
	}
	s.mu.Lock()
	s.files[rec.ID] = *rec
	s.mu.Unlock()
	return nil
}

func (s *Store) UpdateFields(_ context.Context, id string, upd repository.FileUpdate) (*model.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	upd.Apply(&rec)
	s.files[id] = rec
	return &rec, nil
}

// Delete removes a record by ID. Does not error if it does not exist.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.files, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) QueryBySpatialKey(_ context.Context, key string) ([]*model.FileRecord, error) {
	return s.filter(func(r model.FileRecord) bool { return r.SpatialKey == key }), nil
}

func (s *Store) ScanExpired(_ context.Context, nowEpoch int64) ([]*model.FileRecord, error) {
	return s.filter(func(r model.FileRecord) bool { return r.TTL <= nowEpoch }), nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

// Len returns the number of stored file records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

func (s *Store) Touch(_ context.Context, deviceID string, now time.Time) (*model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		d = model.Device{DeviceID: deviceID, CreatedAt: now.UTC()}
	}
	d.LastAuthenticated = now.UTC()
	s.devices[deviceID] = d
	return &d, nil
}

// filter returns copies of the matching records ordered by upload time, then ID.
func (s *Store) filter(match func(model.FileRecord) bool) []*model.FileRecord {
	s.mu.RLock()
	out := make([]*model.FileRecord, 0)
	for _, rec := range s.files {
		if match(rec) {
			rec := rec
			out = append(out, &rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadTime.Equal(out[j].UploadTime) {
			return out[i].UploadTime.Before(out[j].UploadTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
