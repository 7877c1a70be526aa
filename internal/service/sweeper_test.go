package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"deepfake-detector/internal/domain"
)

func TestSweepRemovesOnlyOldOrphans(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, token := e.register(t, "alice")
	e.analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(fakeVerdict, nil)

	d, err := e.detections.Handle(ctx, token, domain.KindImage, jpegUpload(256))
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	orphan := filepath.Join(e.receiver.Dir(), "1-deadbeef-orphan.jpg")
	fresh := filepath.Join(e.receiver.Dir(), "2-cafebabe-inflight.jpg")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(orphan, old, old))
	require.NoError(t, os.Chtimes(d.FilePath, old, old))
	require.NoError(t, os.MkdirAll(filepath.Join(e.receiver.Dir(), "sub"), 0o755))

	sweeper := NewSweeper(e.receiver.Dir(), e.repos.Detections, nil)

	report, err := sweeper.Sweep(ctx, time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, []string{orphan}, report.Orphans)
	assert.Zero(t, report.Removed)
	assert.FileExists(t, orphan)

	report, err = sweeper.Sweep(ctx, time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.NoFileExists(t, orphan)
	assert.FileExists(t, fresh)
	assert.FileExists(t, d.FilePath)
}

func TestSweepKeepsReferencedFilesUnderOtherDirSpellings(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, token := e.register(t, "alice")
	e.analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(fakeVerdict, nil)

	d, err := e.detections.Handle(ctx, token, domain.KindImage, jpegUpload(256))
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(d.FilePath, old, old))

	parent := filepath.Dir(e.receiver.Dir())
	link := filepath.Join(t.TempDir(), "uploads-link")
	require.NoError(t, os.Symlink(e.receiver.Dir(), link))
	t.Chdir(parent)

	for _, dir := range []string{"uploads", "./uploads/", link} {
		t.Run(dir, func(t *testing.T) {
			report, err := NewSweeper(dir, e.repos.Detections, nil).Sweep(ctx, time.Hour, false)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Scanned)
			assert.Empty(t, report.Orphans)
			assert.Zero(t, report.Removed)
			assert.FileExists(t, d.FilePath)
		})
	}
}
