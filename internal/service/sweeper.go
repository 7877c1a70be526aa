package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"deepfake-detector/internal/repository"
	"deepfake-detector/internal/upload"
)

// SweepReport summarises one Sweep.
type SweepReport struct {
	Scanned int
	Orphans []string
	Removed int
}

// Sweeper removes upload files that no detection references. They are left
// behind when the process dies between storing a file and recording it.
type Sweeper struct {
	dir        string
	detections repository.DetectionRepository
	logger     logrus.FieldLogger
	now        func() time.Time
}

func NewSweeper(dir string, detections repository.DetectionRepository, logger logrus.FieldLogger) *Sweeper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sweeper{
		dir:        upload.CanonicalDir(dir),
		detections: detections,
		logger:     logger,
		now:        time.Now,
	}
}

// Sweep inspects files older than grace. Files younger than grace may belong
// to a request still in flight and are skipped.
func (s *Sweeper) Sweep(ctx context.Context, grace time.Duration, dryRun bool) (SweepReport, error) {
	var report SweepReport

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return report, fmt.Errorf("read upload dir: %w", err)
	}

	cutoff := s.now().Add(-grace)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		report.Scanned++
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		referenced, err := s.detections.FilePathExists(ctx, path)
		if err != nil {
			return report, err
		}
		if referenced {
			continue
		}

		report.Orphans = append(report.Orphans, path)
		if dryRun {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("path", path).Warn("remove orphaned upload failed")
			continue
		}
		report.Removed++
	}

	s.logger.WithFields(logrus.Fields{
		"scanned": report.Scanned,
		"orphans": len(report.Orphans),
		"removed": report.Removed,
		"dry_run": dryRun,
	}).Info("upload sweep finished")
	return report, nil
}
