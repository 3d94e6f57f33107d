package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Record store and blob store backends.
const (
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
	StoreRedis    = "redis"
	StoreMemory   = "memory"

	BlobMinIO = "minio"
	BlobS3    = "s3"
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validStoreBackends = []string{StorePostgres, StoreDynamoDB, StoreRedis, StoreMemory}
	validBlobBackends  = []string{BlobMinIO, BlobS3}
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// DynamoDBConfig holds DynamoDB table settings.
type DynamoDBConfig struct {
	Region       string
	Endpoint     string
	FilesTable   string
	DevicesTable string
	SpatialIndex string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// S3Config holds AWS S3 (or S3-compatible) settings.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// FilePolicy holds upload limits, retention and geofence radii.
type FilePolicy struct {
	MaxFileSizeBytes     int64
	RetentionDays        int
	DefaultRadiusMeters  float64
	DownloadRadiusMeters float64
	UploadURLExpiry      time.Duration
	DownloadURLExpiry    time.Duration
}

// Retention returns the configured retention window.
func (p FilePolicy) Retention() time.Duration {
	return time.Duration(p.RetentionDays) * 24 * time.Hour
}

// GeoConfig holds spatial key precision and sampler cache settings.
type GeoConfig struct {
	Precision        int
	SamplerCacheSize int
	SamplerCacheTTL  time.Duration
}

// SweepConfig holds the expiry sweeper schedule.
type SweepConfig struct {
	Enabled     bool
	Schedule    string
	Concurrency int
}

// AuthConfig holds device token settings.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	TokenTTL  time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost      string
	Port         string
	LogLevel     string
	StoreBackend string
	BlobBackend  string
	Database     DatabaseConfig
	DynamoDB     DynamoDBConfig
	Redis        RedisConfig
	MinIO        MinIOConfig
	S3           S3Config
	Files        FilePolicy
	Geo          GeoConfig
	Sweep        SweepConfig
	Auth         AuthConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_HOST", "localhost:8080")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_BACKEND", StorePostgres)
	v.SetDefault("BLOB_BACKEND", BlobMinIO)

	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME_SEC", 300)

	v.SetDefault("DYNAMODB_REGION", "us-east-1")
	v.SetDefault("FILES_TABLE", "files")
	v.SetDefault("DEVICES_TABLE", "devices")
	v.SetDefault("SPATIAL_INDEX", "SpatialKeyIndex")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "geofyle:")

	v.SetDefault("MINIO_REGION", "us-east-1")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_PATH_STYLE", false)

	v.SetDefault("MAX_FILE_SIZE_BYTES", 5242880)
	v.SetDefault("FILE_RETENTION_DAYS", 30)
	v.SetDefault("DEFAULT_RADIUS_METERS", 100.0)
	v.SetDefault("UPLOAD_URL_EXPIRY", time.Hour)
	v.SetDefault("DOWNLOAD_URL_EXPIRY", 5*time.Minute)

	v.SetDefault("GEO_PRECISION", 5)
	v.SetDefault("SAMPLER_CACHE_SIZE", 1024)
	v.SetDefault("SAMPLER_CACHE_TTL", 10*time.Minute)

	v.SetDefault("SWEEP_ENABLED", true)
	v.SetDefault("SWEEP_SCHEDULE", "@daily")
	v.SetDefault("SWEEP_CONCURRENCY", 4)

	v.SetDefault("AUTH_ENABLED", true)
	v.SetDefault("TOKEN_TTL", 24*time.Hour)
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	defaultRadius := v.GetFloat64("DEFAULT_RADIUS_METERS")
	downloadRadius := defaultRadius
	if v.IsSet("DOWNLOAD_RADIUS_METERS") {
		downloadRadius = v.GetFloat64("DOWNLOAD_RADIUS_METERS")
	}

	return &AppConfig{
		AppHost:      v.GetString("APP_HOST"),
		Port:         v.GetString("PORT"),
		LogLevel:     strings.ToLower(v.GetString("LOG_LEVEL")),
		StoreBackend: strings.ToLower(v.GetString("STORE_BACKEND")),
		BlobBackend:  strings.ToLower(v.GetString("BLOB_BACKEND")),
		Database: DatabaseConfig{
			Host:               v.GetString("DB_HOST"),
			Port:               v.GetString("DB_PORT"),
			User:               v.GetString("DB_USER"),
			Password:           v.GetString("DB_PASSWORD"),
			Name:               v.GetString("DB_NAME"),
			SSLMode:            v.GetString("DB_SSLMODE"),
			MaxOpenConns:       v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:       v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetimeSec: v.GetInt("DB_CONN_MAX_LIFETIME_SEC"),
		},
		DynamoDB: DynamoDBConfig{
			Region:       v.GetString("DYNAMODB_REGION"),
			Endpoint:     v.GetString("DYNAMODB_ENDPOINT"),
			FilesTable:   v.GetString("FILES_TABLE"),
			DevicesTable: v.GetString("DEVICES_TABLE"),
			SpatialIndex: v.GetString("SPATIAL_INDEX"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Prefix:   v.GetString("REDIS_PREFIX"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			Region:    v.GetString("MINIO_REGION"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
		S3: S3Config{
			Region:          v.GetString("S3_REGION"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			Bucket:          v.GetString("S3_BUCKET"),
			UsePathStyle:    v.GetBool("S3_USE_PATH_STYLE"),
		},
		Files: FilePolicy{
			MaxFileSizeBytes:     v.GetInt64("MAX_FILE_SIZE_BYTES"),
			RetentionDays:        v.GetInt("FILE_RETENTION_DAYS"),
			DefaultRadiusMeters:  defaultRadius,
			DownloadRadiusMeters: downloadRadius,
			UploadURLExpiry:      v.GetDuration("UPLOAD_URL_EXPIRY"),
			DownloadURLExpiry:    v.GetDuration("DOWNLOAD_URL_EXPIRY"),
		},
		Geo: GeoConfig{
			Precision:        v.GetInt("GEO_PRECISION"),
			SamplerCacheSize: v.GetInt("SAMPLER_CACHE_SIZE"),
			SamplerCacheTTL:  v.GetDuration("SAMPLER_CACHE_TTL"),
		},
		Sweep: SweepConfig{
			Enabled:     v.GetBool("SWEEP_ENABLED"),
			Schedule:    v.GetString("SWEEP_SCHEDULE"),
			Concurrency: v.GetInt("SWEEP_CONCURRENCY"),
		},
		Auth: AuthConfig{
			Enabled:   v.GetBool("AUTH_ENABLED"),
			JWTSecret: v.GetString("JWT_SECRET"),
			TokenTTL:  v.GetDuration("TOKEN_TTL"),
		},
	}
}

// Validate reports every setting that would keep the application from running.
func (c *AppConfig) Validate() error {
	var errs []error

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	if !slices.Contains(validStoreBackends, c.StoreBackend) {
		errs = append(errs, fmt.Errorf("invalid STORE_BACKEND %q", c.StoreBackend))
	}
	if !slices.Contains(validBlobBackends, c.BlobBackend) {
		errs = append(errs, fmt.Errorf("invalid BLOB_BACKEND %q", c.BlobBackend))
	}

	switch c.BlobBackend {
	case BlobMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required"))
		}
	case BlobS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required"))
		}
	}

	if c.Files.MaxFileSizeBytes <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE_BYTES must be bigger than 0"))
	}
	if c.Files.RetentionDays <= 0 {
		errs = append(errs, errors.New("FILE_RETENTION_DAYS must be bigger than 0"))
	}
	if c.Files.DefaultRadiusMeters <= 0 || c.Files.DownloadRadiusMeters <= 0 {
		errs = append(errs, errors.New("radius settings must be bigger than 0"))
	}
	if c.Files.UploadURLExpiry <= 0 || c.Files.DownloadURLExpiry <= 0 {
		errs = append(errs, errors.New("URL expiry settings must be positive durations"))
	}
	if c.Geo.Precision < 0 || c.Geo.Precision > 10 {
		errs = append(errs, errors.New("GEO_PRECISION must be between 0 and 10"))
	}
	if c.Sweep.Enabled && c.Sweep.Schedule == "" {
		errs = append(errs, errors.New("SWEEP_SCHEDULE is required when the sweeper is enabled"))
	}
	if c.Sweep.Concurrency <= 0 {
		errs = append(errs, errors.New("SWEEP_CONCURRENCY must be bigger than 0"))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required when AUTH_ENABLED is true"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be a positive duration"))
	}

	return errors.Join(errs...)
}
