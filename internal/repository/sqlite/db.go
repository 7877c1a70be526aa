package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"deepfake-detector/internal/repository"
)

// Open opens (or creates) a sqlite database at the given path and ensures directories exist.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// a single connection serialises writers; requests still run in parallel
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return db, nil
}

// Repositories bundles the sqlite implementations sharing one handle.
type Repositories struct {
	Users      repository.UserRepository
	Detections repository.DetectionRepository
}

// NewRepositories creates the repositories and their tables.
func NewRepositories(ctx context.Context, db *sql.DB) (*Repositories, error) {
	users := NewUserRepository(db)
	detections := NewDetectionRepository(db)

	if err := users.Init(ctx); err != nil {
		return nil, fmt.Errorf("init user repository: %w", err)
	}
	if err := detections.Init(ctx); err != nil {
		return nil, fmt.Errorf("init detection repository: %w", err)
	}
	return &Repositories{Users: users, Detections: detections}, nil
}
