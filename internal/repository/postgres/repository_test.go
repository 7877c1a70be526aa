package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepfake-detector/internal/apperr"
	"deepfake-detector/internal/domain"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

var detectionCols = []string{
	"id", "user_id", "file_name", "file_type", "file_size", "file_path", "file_url", "mime_type",
	"archive_location", "is_deepfake", "real_percentage", "fake_percentage", "confidence", "created_at",
}

const detectionID = "6f1c1d1e-4b0a-4b7e-9f4e-2a4f3c1b2d10"

func TestMigrateUsesEmbeddedDir(t *testing.T) {
	db, _ := newMock(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("locked")
	}
	assert.ErrorContains(t, Migrate(context.Background(), db), "locked")
}

func TestUserCreateConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	_, err := repo.Create(context.Background(), &domain.User{Username: "alice", Email: "a@example.com"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUserCreateReturnsID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("alice", "a@example.com", "hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	u := &domain.User{Username: "alice", Email: "a@example.com", PasswordHash: "hash"}
	id, err := repo.Create(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, int64(7), u.ID)
}

func TestUserGetByUsernameNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM users\\s+WHERE username = \\$1").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDetectionGetByIDScopedToOwner(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDetectionRepository(db)
	created := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectQuery("FROM detections\\s+WHERE id = \\$1 AND user_id = \\$2").
		WithArgs(detectionID, int64(1)).
		WillReturnRows(sqlmock.NewRows(detectionCols).AddRow(
			detectionID, int64(1), "face.jpg", "image", int64(2048), "uploads/x-face.jpg", "/uploads/x-face.jpg",
			"image/jpeg", "", true, 10.0, 90.0, 88.0, created,
		))
	mock.ExpectQuery("FROM detections\\s+WHERE id = \\$1 AND user_id = \\$2").
		WithArgs(detectionID, int64(2)).
		WillReturnError(sql.ErrNoRows)

	d, err := repo.GetByID(context.Background(), detectionID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.KindImage, d.FileType)
	assert.Equal(t, domain.Result{IsDeepfake: true, RealPercentage: 10, FakePercentage: 90, Confidence: 88}, d.Result)
	assert.Equal(t, created, d.CreatedAt)

	_, err = repo.GetByID(context.Background(), detectionID, 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDetectionMalformedIDIsNotFound(t *testing.T) {
	db, _ := newMock(t)
	repo := NewDetectionRepository(db)

	_, err := repo.GetByID(context.Background(), "not-a-uuid", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = repo.DeleteByID(context.Background(), "../etc", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDetectionDeleteReturnsRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDetectionRepository(db)

	mock.ExpectQuery("DELETE FROM detections\\s+WHERE id = \\$1 AND user_id = \\$2\\s+RETURNING").
		WithArgs(detectionID, int64(1)).
		WillReturnRows(sqlmock.NewRows(detectionCols).AddRow(
			detectionID, int64(1), "clip.mp4", "video", int64(4096), "uploads/y-clip.mp4", "/uploads/y-clip.mp4",
			"video/mp4", "s3://bucket/detections/1/y-clip.mp4", false, 95.0, 5.0, 91.0, time.Now(),
		))

	d, err := repo.DeleteByID(context.Background(), detectionID, 1)
	require.NoError(t, err)
	assert.Equal(t, "uploads/y-clip.mp4", d.FilePath)
	assert.Equal(t, "s3://bucket/detections/1/y-clip.mp4", d.ArchiveLocation)
}

func TestDetectionCountByOwnerBuildsFilter(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDetectionRepository(db)
	video, fake := domain.KindVideo, true

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM detections WHERE user_id = $1 AND file_type = $2 AND is_deepfake = $3")).
		WithArgs(int64(9), "video", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))

	n, err := repo.CountByOwner(context.Background(), 9, domain.CountFilter{Kind: &video, Deepfake: &fake})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestDetectionListByOwnerLimit(t *testing.T) {
	db, mock := newMock(t)
	repo := NewDetectionRepository(db)

	mock.ExpectQuery("ORDER BY created_at DESC, seq DESC LIMIT \\$2").
		WithArgs(int64(3), int64(5)).
		WillReturnRows(sqlmock.NewRows(detectionCols))

	list, err := repo.ListByOwner(context.Background(), 3, 5)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}
