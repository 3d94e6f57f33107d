package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_files",
		SQL: `CREATE TABLE IF NOT EXISTS files (
  id              TEXT             PRIMARY KEY,
  name            TEXT             NOT NULL,
  description     TEXT             NOT NULL DEFAULT '',
  size            BIGINT           NOT NULL CHECK (size > 0),
  mime_type       TEXT             NOT NULL,
  latitude        DOUBLE PRECISION NOT NULL CHECK (latitude BETWEEN -90 AND 90),
  longitude       DOUBLE PRECISION NOT NULL CHECK (longitude BETWEEN -180 AND 180),
  spatial_key     TEXT             NOT NULL,
  upload_time     TIMESTAMPTZ      NOT NULL,
  expiration_time TIMESTAMPTZ      NOT NULL,
  ttl             BIGINT           NOT NULL,
  download_count  BIGINT           NOT NULL DEFAULT 0 CHECK (download_count >= 0)
);`,
	},
	{
		Name: "create_index_files_spatial_key",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_spatial_key ON files (spatial_key, upload_time);`,
	},
	{
		Name: "create_index_files_ttl",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_ttl ON files (ttl);`,
	},
	{
		Name: "create_table_devices",
		SQL: `CREATE TABLE IF NOT EXISTS devices (
  device_id          TEXT        PRIMARY KEY,
  created_at         TIMESTAMPTZ NOT NULL,
  last_authenticated TIMESTAMPTZ NOT NULL
);`,
	},
}

// EnsureMigrated checks if the 'files' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger, dbHost string) error {
	start := time.Now()
	log = log.With(zap.String("component", "database"), zap.String("db_host", dbHost))

	log.Info("db_migration_check", zap.String("status", "starting"))

	var exists bool
	query := "SELECT to_regclass('public.files') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			zap.String("status", "error"),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			zap.String("status", "success"),
			zap.String("reason", "schema already exists"),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}

	log.Info("db_migration_start", zap.String("status", "in_progress"))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("status", "error"),
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Duration("duration", time.Since(start)),
				zap.Duration("step_duration", time.Since(stepStart)),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			zap.String("status", "success"),
			zap.String("migration_step", step.Name),
			zap.Duration("step_duration", time.Since(stepStart)),
		)
	}

	log.Info("db_migration_success",
		zap.String("status", "success"),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
