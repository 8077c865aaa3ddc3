package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-passbot/internal/config"
	"ms-passbot/internal/database/migrations"
	"ms-passbot/internal/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	driver := pflag.String("driver", cfg.Database.Driver, "database driver: sqlite or postgres")
	dsn := pflag.String("dsn", "", "sqlite file or postgres DSN (defaults to SQLITE_PATH / POSTGRES_DSN)")
	down := pflag.Bool("down", false, "roll back every migration")
	to := pflag.Uint("to", 0, "migrate to this version instead of the latest")
	pflag.Parse()

	log := logger.NewWithWriters(os.Stdout, nil, logger.INFO)

	if *dsn == "" {
		if *driver == config.DriverPostgres {
			*dsn = cfg.Database.PostgresDSN
		} else {
			*dsn = cfg.Database.SQLitePath
		}
	}

	sqlDriver := "postgres"
	if *driver == config.DriverSQLite {
		sqlDriver = sqliteshim.ShimName
	}
	db, err := sql.Open(sqlDriver, *dsn)
	if err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("open %s: %v", *driver, err))
	}

	runner := migrations.NewRunner(db, *driver, log)
	defer runner.Close()

	switch {
	case *down:
		err = runner.MigrateDown()
	case *to > 0:
		err = runner.MigrateTo(*to)
	default:
		err = runner.MigrateUp()
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	version, dirty, err := runner.Version()
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("schema at version %d (dirty: %t)", version, dirty))
}
