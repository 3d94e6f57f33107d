package mocks

import (
	"context"
	"time"

	"geofyle/internal/model"
	"geofyle/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockFileRepository struct {
	mock.Mock
}

var _ repository.FileRepository = (*MockFileRepository)(nil)

func (m *MockFileRepository) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileRecord), args.Error(1)
}

func (m *MockFileRepository) Put(ctx context.Context, rec *model.FileRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockFileRepository) UpdateFields(ctx context.Context, id string, upd repository.FileUpdate) (*model.FileRecord, error) {
	args := m.Called(ctx, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileRecord), args.Error(1)
}

func (m *MockFileRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFileRepository) QueryBySpatialKey(ctx context.Context, key string) ([]*model.FileRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.FileRecord), args.Error(1)
}

func (m *MockFileRepository) ScanExpired(ctx context.Context, nowEpoch int64) ([]*model.FileRecord, error) {
	args := m.Called(ctx, nowEpoch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.FileRecord), args.Error(1)
}

func (m *MockFileRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockDeviceRepository struct {
	mock.Mock
}

var _ repository.DeviceRepository = (*MockDeviceRepository)(nil)

func (m *MockDeviceRepository) Touch(ctx context.Context, deviceID string, now time.Time) (*model.Device, error) {
	args := m.Called(ctx, deviceID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}
