package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-passbot/internal/config"
	"ms-passbot/internal/database/migrations"
	"ms-passbot/internal/logger"
)

// ErrConstraintViolation wraps store-level uniqueness or reference failures.
var ErrConstraintViolation = errors.New("store constraint violation")

// DB is the single transactional store behind the capacity ledger, the
// visitor records, users and the payment journal.
type DB struct {
	Bun *bun.DB
	// Now is used for every stored timestamp and for redemption codes.
	Now func() time.Time
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB, Now: func() time.Time { return time.Now().UTC() }}
}

// Open connects to the configured database, retrying the first ping, and
// applies migrations when AutoMigrate is set.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	var (
		sqldb *sql.DB
		err   error
	)

	switch cfg.Driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// One connection serialises writers and keeps the pragmas below alive.
		sqldb.SetMaxOpenConns(1)
		sqldb.SetMaxIdleConns(1)
		sqldb.SetConnMaxLifetime(0)
		for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
			if _, err := sqldb.ExecContext(ctx, pragma); err != nil {
				sqldb.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
		log.Info("DATABASE", fmt.Sprintf("✅ SQLite opened at %s", cfg.SQLitePath))

	case config.DriverPostgres:
		sqldb, err = openPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if cfg.AutoMigrate {
		if err := migrate(ctx, cfg, sqldb, log); err != nil {
			sqldb.Close()
			return nil, err
		}
	}

	var bunDB *bun.DB
	if cfg.Driver == config.DriverPostgres {
		bunDB = bun.NewDB(sqldb, pgdialect.New())
	} else {
		bunDB = bun.NewDB(sqldb, sqlitedialect.New())
	}
	return New(bunDB), nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*sql.DB, error) {
	var (
		sqldb *sql.DB
		err   error
	)
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.PostgresDSN)
		if err == nil {
			err = sqldb.PingContext(ctx)
			if err == nil {
				break
			}
			sqldb.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", maxRetries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return sqldb, nil
}

// migrate runs the embedded schema. The postgres migration driver pins a
// connection and closes its handle, so it gets a dedicated one.
func migrate(ctx context.Context, cfg config.DatabaseConfig, sqldb *sql.DB, log *logger.Logger) error {
	if cfg.Driver != config.DriverPostgres {
		return migrations.NewRunner(sqldb, cfg.Driver, log).MigrateUp()
	}

	mdb, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	runner := migrations.NewRunner(mdb, cfg.Driver, log)
	defer runner.Close()
	return runner.MigrateUp()
}

func (d *DB) Close() error {
	return d.Bun.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}

func (d *DB) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

func (d *DB) inTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, nil, fn)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
