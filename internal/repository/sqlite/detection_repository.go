package sqlite

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

const createDetectionsTable = `
CREATE TABLE IF NOT EXISTS detections (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	user_id INTEGER NOT NULL,
	file_name TEXT NOT NULL,
	file_type TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	file_path TEXT NOT NULL,
	file_url TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	archive_location TEXT NOT NULL DEFAULT '',
	is_deepfake INTEGER NOT NULL,
	real_percentage REAL NOT NULL,
	fake_percentage REAL NOT NULL,
	confidence REAL NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_detections_user_created ON detections(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_detections_file_path ON detections(file_path);
`

const detectionColumns = `id, user_id, file_name, file_type, file_size, file_path, file_url, mime_type, archive_location,
	is_deepfake, real_percentage, fake_percentage, confidence, created_at`

type DetectionRepository struct {
	db *sql.DB
}

func NewDetectionRepository(db *sql.DB) repository.DetectionRepository {
	return &DetectionRepository{db: db}
}

func (r *DetectionRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createDetectionsTable); err != nil {
		return fmt.Errorf("create detections table: %w", err)
	}
	return nil
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
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		d.CreatedAt.UnixNano(),
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
	row := r.db.QueryRowContext(ctx, `
SELECT `+detectionColumns+`
FROM detections
WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	return scanDetection(row)
}

func (r *DetectionRepository) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]domain.Detection, error) {
	query := `
SELECT ` + detectionColumns + `
FROM detections
WHERE user_id = ?
ORDER BY created_at DESC, seq DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT ?`
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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	d, err := scanDetection(tx.QueryRowContext(ctx, `
SELECT `+detectionColumns+`
FROM detections
WHERE id = ? AND user_id = ?`,
		id, ownerID,
	))
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM detections WHERE id = ? AND user_id = ?`, id, ownerID); err != nil {
		return nil, fmt.Errorf("delete detection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return d, nil
}

func (r *DetectionRepository) CountByOwner(ctx context.Context, ownerID int64, filter domain.CountFilter) (int64, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{ownerID}
	)
	if filter.Kind != nil {
		where = append(where, "file_type = ?")
		args = append(args, string(*filter.Kind))
	}
	if filter.Deepfake != nil {
		where = append(where, "is_deepfake = ?")
		args = append(args, *filter.Deepfake)
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
		`SELECT EXISTS(SELECT 1 FROM detections WHERE file_path = ?)`, path,
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
		d         domain.Detection
		fileType  string
		createdAt int64
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
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "Detection not found")
		}
		return nil, fmt.Errorf("scan detection: %w", err)
	}
	d.FileType = domain.Kind(fileType)
	d.CreatedAt = time.Unix(0, createdAt).UTC()
	return &d, nil
}
