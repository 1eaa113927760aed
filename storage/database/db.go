package database

import (
	"context"
	"database/sql"
	"embed"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/hcanning/homeroom/core"
)

const (
	driverName    = "postgres"
	MigrationsDir = "migrations"
)

//go:embed migrations/*.sql
var Migrations embed.FS

func init() {
	goose.SetBaseFS(Migrations)
	if err := goose.SetDialect(driverName); err != nil {
		panic(err)
	}
}

// Open opens a connection pool on the configured database URL and waits until it answers.
func Open(conf core.DatabaseConfig) (*sql.DB, error) {
	if !conf.Relational() {
		return nil, errors.New("no database URL configured")
	}
	db, err := sql.Open(driverName, conf.URL)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if conf.MaxOpenConns > 0 {
		db.SetMaxOpenConns(conf.MaxOpenConns)
	}
	if conf.MaxIdleConns > 0 {
		db.SetMaxIdleConns(conf.MaxIdleConns)
	}
	if conf.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(conf.ConnMaxLifetime)
	}

	if err = ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 20
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// Migrate brings the schema up to date. Safe to run on every start.
func Migrate(db *sql.DB) error {
	if err := goose.Up(db, MigrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
