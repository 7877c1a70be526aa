package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"deepfake-detector/internal/auth"
	"deepfake-detector/internal/domain"
	"deepfake-detector/internal/metrics"
	"deepfake-detector/internal/repository/sqlite"
	"deepfake-detector/internal/storage"
	"deepfake-detector/internal/upload"
	"deepfake-detector/internal/upload/uploadtest"
)

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, kind domain.Kind, filePath, fileName, mimeType string) (*domain.Result, error) {
	args := m.Called(ctx, kind, filePath, fileName, mimeType)
	res, _ := args.Get(0).(*domain.Result)
	return res, args.Error(1)
}

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) Upload(ctx context.Context, localPath, key, contentType string) (string, error) {
	args := m.Called(ctx, localPath, key, contentType)
	return args.String(0), args.Error(1)
}

func (m *mockArchive) Open(ctx context.Context, location string) (*storage.Object, error) {
	args := m.Called(ctx, location)
	obj, _ := args.Get(0).(*storage.Object)
	return obj, args.Error(1)
}

func (m *mockArchive) Delete(ctx context.Context, location string) error {
	return m.Called(ctx, location).Error(0)
}

type env struct {
	repos      *sqlite.Repositories
	users      UserService
	receiver   *upload.Receiver
	analyzer   *mockAnalyzer
	stats      *StatsService
	metrics    *metrics.Metrics
	detections *DetectionService
	logHook    *test.Hook
}

type envOption func(*DetectionConfig)

func withArchive(a storage.Archive) envOption {
	return func(c *DetectionConfig) {
		c.Archive = a
		c.ArchiveKeyPrefix = "detections"
	}
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlite.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repos, err := sqlite.NewRepositories(context.Background(), db)
	require.NoError(t, err)

	receiver, err := upload.NewReceiver(upload.Config{Dir: filepath.Join(dir, "uploads"), MaxBytes: 4 << 20})
	require.NoError(t, err)

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	users := NewUserService(repos.Users, auth.NewTokenManager("test-secret", time.Hour), bcrypt.MinCost)
	stats := NewStatsService(repos.Detections, time.Minute)
	analyzer := &mockAnalyzer{}

	cfg := DetectionConfig{
		Tokens:     users,
		Receiver:   receiver,
		Analyzer:   analyzer,
		Detections: repos.Detections,
		Stats:      stats,
		Metrics:    m,
		Logger:     logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &env{
		repos:      repos,
		users:      users,
		receiver:   receiver,
		analyzer:   analyzer,
		stats:      stats,
		metrics:    m,
		detections: NewDetectionService(cfg),
		logHook:    hook,
	}
}

func (e *env) register(t *testing.T, name string) (*domain.User, string) {
	t.Helper()
	u, token, err := e.users.Register(context.Background(), name, name+"@example.com", "password123")
	require.NoError(t, err)
	return u, token
}

func jpegUpload(size int) upload.FileUpload {
	data := uploadtest.JPEG(size)
	return upload.FileUpload{
		Name:        "face.jpg",
		ContentType: "image/jpeg",
		Size:        int64(len(data)),
		Reader:      bytes.NewReader(data),
	}
}

func mp4Upload(size int) upload.FileUpload {
	data := uploadtest.MP4(size)
	return upload.FileUpload{
		Name:        "clip.mp4",
		ContentType: "video/mp4",
		Size:        -1,
		Reader:      bytes.NewReader(data),
	}
}

func textUpload() upload.FileUpload {
	return upload.FileUpload{
		Name:        "notes.txt",
		ContentType: "text/plain",
		Size:        -1,
		Reader:      io.NopCloser(bytes.NewReader(uploadtest.Text(64))),
	}
}

var fakeVerdict = &domain.Result{IsDeepfake: true, RealPercentage: 10, FakePercentage: 90, Confidence: 88}

func (e *env) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	e.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}
