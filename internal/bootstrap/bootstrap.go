// Package bootstrap builds the configured store, blob store and sampler.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"geofyle/internal/config"
	"geofyle/internal/database"
	"geofyle/internal/database/migration"
	"geofyle/internal/geo"
	"geofyle/internal/repository"
	"geofyle/internal/repository/dynamo"
	"geofyle/internal/repository/memory"
	"geofyle/internal/repository/postgres"
	"geofyle/internal/repository/redisstore"
	"geofyle/internal/storage"
)

var openPostgres = database.NewPostgres

// Stores bundles the repositories backed by one STORE_BACKEND.
type Stores struct {
	Files   repository.FileRepository
	Devices repository.DeviceRepository

	closer func() error
}

// Close releases the backend connection, if any.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// OpenStores connects the configured metadata store.
func OpenStores(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*Stores, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := openPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Stores{
			Files:   postgres.NewFilePostgres(db),
			Devices: postgres.NewDevicePostgres(db),
			closer:  db.Close,
		}, nil

	case config.StoreDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoDB.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
			}
		})
		store := dynamo.New(client, dynamo.Tables{
			Files:        cfg.DynamoDB.FilesTable,
			Devices:      cfg.DynamoDB.DevicesTable,
			SpatialIndex: cfg.DynamoDB.SpatialIndex,
		})
		return &Stores{Files: store, Devices: store}, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		store := redisstore.New(client, cfg.Redis.Prefix)
		return &Stores{Files: store, Devices: store, closer: client.Close}, nil

	case config.StoreMemory:
		log.Warn("using in-memory store; records are lost on restart")
		store := memory.New()
		return &Stores{Files: store, Devices: store}, nil

	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

// OpenBlobStore builds the configured presigning blob store.
func OpenBlobStore(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.BlobBackend {
	case config.BlobMinIO:
		return storage.NewMinIO(ctx, cfg.MinIO)
	case config.BlobS3:
		return storage.NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", cfg.BlobBackend)
	}
}

// NewSampler returns the cardinal sampler, memoized when a cache size is set.
func NewSampler(cfg config.GeoConfig) geo.Sampler {
	var s geo.Sampler = geo.NewCardinalSampler(cfg.Precision)
	if cfg.SamplerCacheSize > 0 {
		s = geo.NewCachedSampler(s, cfg.SamplerCacheSize, cfg.SamplerCacheTTL)
	}
	return s
}
