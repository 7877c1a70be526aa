package repository

import (
	"context"

	"deepfake-detector/internal/domain"
)

// DetectionRepository persists completed analyses. Every read or delete is
// scoped to an owner: a record owned by someone else is reported as NotFound.
type DetectionRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, detection *domain.Detection) error
	GetByID(ctx context.Context, id string, ownerID int64) (*domain.Detection, error)
	// ListByOwner returns newest first. limit <= 0 means no limit.
	ListByOwner(ctx context.Context, ownerID int64, limit int) ([]domain.Detection, error)
	// DeleteByID removes the record and returns it so callers can release its files.
	DeleteByID(ctx context.Context, id string, ownerID int64) (*domain.Detection, error)
	CountByOwner(ctx context.Context, ownerID int64, filter domain.CountFilter) (int64, error)
	FilePathExists(ctx context.Context, path string) (bool, error)
}
