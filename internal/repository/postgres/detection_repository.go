package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"deepfake-detector/internal/apperr"
	"deepfake-detector/internal/domain"
	"deepfake-detector/internal/repository"
)

const detectionColumns = `id, user_id, file_name, file_type, file_size, file_path, file_url, mime_type, archive_location,
	is_deepfake, real_percentage, fake_percentage, confidence, created_at`

type DetectionRepository struct {
	db *sql.DB
}

func NewDetectionRepository(db *sql.DB) repository.DetectionRepository {
	return &DetectionRepository{db: db}
}

func (r *DetectionRepository) Init(ctx context.Context) error {
	return Migrate(ctx, r.db)
}

func (r *DetectionRepository) Create(ctx context.Context, d *domain.Detection) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO detections (`+detectionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID,
		d.UserID,
		d.FileName,
		string(d.FileType),
		d.FileSize,
		d.FilePath,
		d.FileURL,
		d.MimeType,
		d.ArchiveLocation,
		d.Result.IsDeepfake,
		d.Result.RealPercentage,
		d.Result.FakePercentage,
		d.Result.Confidence,
		d.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.KindConflict, "Detection already exists", err)
		}
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

func (r *DetectionRepository) GetByID(ctx context.Context, id string, ownerID int64) (*domain.Detection, error) {
	if _, err := uuid.Parse(id); err != nil {
		// not a uuid, cannot exist
		return nil, apperr.New(apperr.KindNotFound, "Detection not found")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+detectionColumns+`
FROM detections
WHERE id = $1 AND user_id = $2`, id, ownerID)
	return scanDetection(row)
}

func (r *DetectionRepository) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]domain.Detection, error) {
	query := `
SELECT ` + detectionColumns + `
FROM detections
WHERE user_id = $1
ORDER BY created_at DESC, seq DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	detections := make([]domain.Detection, 0)
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		detections = append(detections, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate detections: %w", err)
	}
	return detections, nil
}

func (r *DetectionRepository) DeleteByID(ctx context.Context, id string, ownerID int64) (*domain.Detection, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.New(apperr.KindNotFound, "Detection not found")
	}
	row := r.db.QueryRowContext(ctx, `
DELETE FROM detections
WHERE id = $1 AND user_id = $2
RETURNING `+detectionColumns, id, ownerID)
	return scanDetection(row)
}

func (r *DetectionRepository) CountByOwner(ctx context.Context, ownerID int64, filter domain.CountFilter) (int64, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{ownerID}
	)
	if filter.Kind != nil {
		args = append(args, string(*filter.Kind))
		where = append(where, fmt.Sprintf("file_type = $%d", len(args)))
	}
	if filter.Deepfake != nil {
		args = append(args, *filter.Deepfake)
		where = append(where, fmt.Sprintf("is_deepfake = $%d", len(args)))
	}

	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM detections WHERE `+strings.Join(where, " AND "),
		args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return count, nil
}

func (r *DetectionRepository) FilePathExists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM detections WHERE file_path = $1)`, path,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup file path: %w", err)
	}
	return exists, nil
}

func scanDetection(row interface {
	Scan(dest ...any) error
}) (*domain.Detection, error) {
	var (
		d        domain.Detection
		fileType string
	)
	if err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.FileName,
		&fileType,
		&d.FileSize,
		&d.FilePath,
		&d.FileURL,
		&d.MimeType,
		&d.ArchiveLocation,
		&d.Result.IsDeepfake,
		&d.Result.RealPercentage,
		&d.Result.FakePercentage,
		&d.Result.Confidence,
		&d.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "Detection not found")
		}
		return nil, fmt.Errorf("scan detection: %w", err)
	}
	d.FileType = domain.Kind(fileType)
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}
