// Package postgres implements the repositories on PostgreSQL through the
// pgx stdlib driver. Schema changes are applied with goose migrations.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"deepfake-detector/internal/repository"
)

//go:embed migrations/*.sql
var migrations embed.FS

// swapped in tests
var gooseUpContext = goose.UpContext

// Open connects to the database and checks it is reachable.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Repositories bundles the postgres implementations sharing one handle.
type Repositories struct {
	Users      repository.UserRepository
	Detections repository.DetectionRepository
}

// NewRepositories migrates the schema and returns the repositories.
func NewRepositories(ctx context.Context, db *sql.DB) (*Repositories, error) {
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return &Repositories{
		Users:      NewUserRepository(db),
		Detections: NewDetectionRepository(db),
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
