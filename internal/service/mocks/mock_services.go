package mocks

import (
	"context"

	"geofyle/internal/model"
	"geofyle/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockFileService struct {
	mock.Mock
}

var _ service.FileService = (*MockFileService)(nil)

func (m *MockFileService) Create(ctx context.Context, in service.CreateFileInput) (*service.UploadResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockFileService) Get(ctx context.Context, id string) (*model.FileView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileView), args.Error(1)
}

func (m *MockFileService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockSearchEngine struct {
	mock.Mock
}

var _ service.SearchEngine = (*MockSearchEngine)(nil)

func (m *MockSearchEngine) FindNearby(ctx context.Context, center model.Location, radiusMeters float64) ([]model.FileView, error) {
	args := m.Called(ctx, center, radiusMeters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FileView), args.Error(1)
}

func (m *MockSearchEngine) DefaultRadius() float64 {
	args := m.Called()
	return args.Get(0).(float64)
}

type MockAccessGate struct {
	mock.Mock
}

var _ service.AccessGate = (*MockAccessGate)(nil)

func (m *MockAccessGate) AuthorizeAndRenewDownload(ctx context.Context, fileID string, requester model.Location) (*service.DownloadGrant, error) {
	args := m.Called(ctx, fileID, requester)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DownloadGrant), args.Error(1)
}

type MockAuthService struct {
	mock.Mock
}

var _ service.AuthService = (*MockAuthService)(nil)

func (m *MockAuthService) Authenticate(ctx context.Context, deviceID string) (*service.Token, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Token), args.Error(1)
}

func (m *MockAuthService) Verify(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}
