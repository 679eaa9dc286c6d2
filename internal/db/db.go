package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"autostock/internal/config"
	"autostock/internal/errs"
	"autostock/internal/models"
)

const connectTimeout = 10 * time.Second

// DB bundles the gorm handle with its pool so both can be closed together.
type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

// Open connects to postgres, sizes the pool and verifies the connection.
// Failures wrap errs.ErrPersistence.
func Open(ctx context.Context, cfg config.DBConfig) (*DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %v: %w", err, errs.ErrPersistence)
	}
	sqldb, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("pool: %v: %w", err, errs.ErrPersistence)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	d := &DB{Gorm: gdb, SQL: sqldb}
	pctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := d.Ping(pctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("ping postgres: %v: %w", err, errs.ErrPersistence)
	}
	if cfg.Timezone != "" {
		if err := gdb.WithContext(pctx).Exec("SET TIME ZONE '" + cfg.Timezone + "'").Error; err != nil {
			_ = sqldb.Close()
			return nil, fmt.Errorf("set timezone %q: %v: %w", cfg.Timezone, err, errs.ErrPersistence)
		}
	}
	return d, nil
}

// AutoMigrate creates the state blob and order journal tables.
func (d *DB) AutoMigrate() error {
	if d == nil || d.Gorm == nil {
		return nil
	}
	return d.Gorm.AutoMigrate(
		&models.StateBlob{},
		&models.OrderRecord{},
	)
}

func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.PingContext(ctx)
}

func (d *DB) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Close()
}
