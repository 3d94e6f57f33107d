package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"geofyle/internal/config"
	"geofyle/internal/geo"
	"geofyle/internal/repository/dynamo"
	"geofyle/internal/repository/memory"
	"geofyle/internal/repository/postgres"
	"geofyle/internal/repository/redisstore"
)

func TestOpenStores(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	t.Run("memory", func(t *testing.T) {
		stores, err := OpenStores(ctx, &config.AppConfig{StoreBackend: config.StoreMemory}, log)
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, stores.Files)
		assert.Same(t, stores.Files, stores.Devices)
		assert.NoError(t, stores.Close())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := &config.AppConfig{
			StoreBackend: config.StoreRedis,
			Redis:        config.RedisConfig{Addr: mr.Addr(), Prefix: "test:"},
		}
		stores, err := OpenStores(ctx, cfg, log)
		require.NoError(t, err)
		assert.IsType(t, &redisstore.Store{}, stores.Files)
		assert.NoError(t, stores.Files.Ping(ctx))
		assert.NoError(t, stores.Close())
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := &config.AppConfig{StoreBackend: config.StoreRedis, Redis: config.RedisConfig{Addr: addr}}
		_, err := OpenStores(ctx, cfg, log)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis ping")
	})

	t.Run("dynamodb", func(t *testing.T) {
		t.Setenv("AWS_ACCESS_KEY_ID", "test")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
		cfg := &config.AppConfig{
			StoreBackend: config.StoreDynamoDB,
			DynamoDB: config.DynamoDBConfig{
				Region:   "us-east-1",
				Endpoint: "http://localhost:8000",
			},
		}
		stores, err := OpenStores(ctx, cfg, log)
		require.NoError(t, err)
		assert.IsType(t, &dynamo.Store{}, stores.Files)
		assert.NoError(t, stores.Close())
	})

	t.Run("postgres", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)

		orig := openPostgres
		openPostgres = func(context.Context, config.DatabaseConfig) (*sql.DB, error) { return db, nil }
		defer func() { openPostgres = orig }()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT to_regclass('public.files') IS NOT NULL")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectClose()

		stores, err := OpenStores(ctx, &config.AppConfig{StoreBackend: config.StorePostgres}, log)
		require.NoError(t, err)
		assert.IsType(t, &postgres.FilePostgres{}, stores.Files)
		assert.IsType(t, &postgres.DevicePostgres{}, stores.Devices)
		assert.NoError(t, stores.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postgres migration failure closes db", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)

		orig := openPostgres
		openPostgres = func(context.Context, config.DatabaseConfig) (*sql.DB, error) { return db, nil }
		defer func() { openPostgres = orig }()

		mock.ExpectQuery("SELECT to_regclass").WillReturnError(errors.New("boom"))
		mock.ExpectClose()

		_, err = OpenStores(ctx, &config.AppConfig{StoreBackend: config.StorePostgres}, log)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postgres connect failure", func(t *testing.T) {
		orig := openPostgres
		openPostgres = func(context.Context, config.DatabaseConfig) (*sql.DB, error) {
			return nil, errors.New("db ping: refused")
		}
		defer func() { openPostgres = orig }()

		_, err := OpenStores(ctx, &config.AppConfig{StoreBackend: config.StorePostgres}, log)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect postgres")
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := OpenStores(ctx, &config.AppConfig{StoreBackend: "cassandra"}, log)
		assert.EqualError(t, err, `unsupported store backend "cassandra"`)
	})
}

func TestOpenBlobStore(t *testing.T) {
	ctx := context.Background()

	t.Run("s3", func(t *testing.T) {
		cfg := &config.AppConfig{
			BlobBackend: config.BlobS3,
			S3: config.S3Config{
				Region:          "us-east-1",
				Bucket:          "geofyle",
				AccessKeyID:     "AKID",
				SecretAccessKey: "SECRET",
			},
		}
		store, err := OpenBlobStore(ctx, cfg)
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("minio without endpoint", func(t *testing.T) {
		_, err := OpenBlobStore(ctx, &config.AppConfig{BlobBackend: config.BlobMinIO})
		assert.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := OpenBlobStore(ctx, &config.AppConfig{BlobBackend: "gcs"})
		assert.EqualError(t, err, `unsupported blob backend "gcs"`)
	})
}

func TestNewSampler(t *testing.T) {
	center := geo.Point{Latitude: 40.7128, Longitude: -74.0060}

	plain := NewSampler(config.GeoConfig{Precision: 5})
	assert.IsType(t, &geo.CardinalSampler{}, plain)

	cached := NewSampler(config.GeoConfig{Precision: 5, SamplerCacheSize: 8, SamplerCacheTTL: time.Minute})
	require.IsType(t, &geo.CachedSampler{}, cached)

	want, err := plain.CandidateKeys(center, 100)
	require.NoError(t, err)
	got, err := cached.CandidateKeys(center, 100)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
