// Package storage opens the durable store and the Redis connection shared by
// the services, and owns the schema migrations.
package storage

import (
	"context"
	"time"

	"nexochat/backend/internal/config"
	"nexochat/backend/internal/models"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Service bundles the connections handed to the rest of the backend.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client // nil when the in-process broker is used
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{DB: db, Redis: rdb}
}

// Connect opens the database, runs migrations and, when the Redis broker is
// configured, connects and pings Redis.
func Connect(ctx context.Context, cfg *config.Config) (*Service, error) {
	db, err := OpenDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Broker == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrapf(err, "failed to connect Redis at %s", cfg.Redis.Addr)
		}
	}

	jww.INFO.Println("Database and Redis connections established, migrations complete.")
	return NewStorageService(db, rdb), nil
}

// OpenDB opens a gorm connection for the configured driver. SQLite is limited
// to a single connection so that in-memory databases are shared by every
// caller; code must therefore never use the root handle inside a transaction.
func OpenDB(cfg config.Database) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(jww.TRACE, logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Info,
		}),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	})
	if err != nil {
		return nil, errors.Errorf("Unable to initialize database backend: %+v", err)
	}

	if cfg.Driver == "sqlite" {
		// Foreign keys are disabled in SQLite by default
		if err = db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, err
		}
		sqlDb, err := db.DB()
		if err != nil {
			return nil, errors.Errorf("Unable to configure database connection pool: %+v", err)
		}
		sqlDb.SetMaxOpenConns(1)
	}

	return db, nil
}

// Migrate creates or updates every table.
// WARNING: Order is important, referenced tables come first.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Profile{},
		&models.Block{},
		&models.Conversation{},
		&models.Message{},
		&models.Notification{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	return nil
}

// Close releases both connections.
func (s *Service) Close() error {
	var firstErr error
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if s.DB != nil {
		sqlDb, err := s.DB.DB()
		if err == nil {
			err = sqlDb.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
