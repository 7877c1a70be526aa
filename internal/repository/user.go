package repository

import (
	"context"

	"deepfake-detector/internal/domain"
)

// UserRepository defines persistence operations for User entities.
// Lookups of missing users return an apperr NotFound error; unique
// violations return Conflict.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}
