package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"deepfake-detector/internal/apperr"
	"deepfake-detector/internal/domain"
	"deepfake-detector/internal/metrics"
	"deepfake-detector/internal/repository"
	"deepfake-detector/internal/storage"
	"deepfake-detector/internal/upload"
)

// Pipeline stages, in order. Used as log fields and metric labels.
const (
	StageAuthenticate = "authenticate"
	StageStore        = "store"
	StageAnalyze      = "analyze"
	StageRecord       = "record"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// Receiver validates and stores uploads.
type Receiver interface {
	Receive(ctx context.Context, kind domain.Kind, f upload.FileUpload) (*domain.StoredFile, error)
	Remove(path string) error
}

// Analyzer sends a stored file to the inference service.
type Analyzer interface {
	Analyze(ctx context.Context, kind domain.Kind, filePath, fileName, mimeType string) (*domain.Result, error)
}

// StatsInvalidator drops cached per-user aggregates.
type StatsInvalidator interface {
	Invalidate(userID int64)
}

// DetectionConfig wires a DetectionService.
type DetectionConfig struct {
	Tokens     TokenVerifier
	Receiver   Receiver
	Analyzer   Analyzer
	Detections repository.DetectionRepository
	// Archive is optional.
	Archive          storage.Archive
	ArchiveKeyPrefix string
	Stats            StatsInvalidator
	Metrics          *metrics.Metrics
	Logger           logrus.FieldLogger
}

// FileContent is a stored upload ready to be sent to a client. Exactly one
// of Path and Body is set.
type FileContent struct {
	Path        string
	Body        io.ReadCloser
	Size        int64
	Name        string
	ContentType string
}

// DetectionService runs the upload, analyse and record pipeline and serves
// a user's detection history.
type DetectionService struct {
	tokens        TokenVerifier
	receiver      Receiver
	analyzer      Analyzer
	detections    repository.DetectionRepository
	archive       storage.Archive
	archivePrefix string
	stats         StatsInvalidator
	metrics       *metrics.Metrics
	logger        logrus.FieldLogger
	now           func() time.Time
}

func NewDetectionService(cfg DetectionConfig) *DetectionService {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DetectionService{
		tokens:        cfg.Tokens,
		receiver:      cfg.Receiver,
		analyzer:      cfg.Analyzer,
		detections:    cfg.Detections,
		archive:       cfg.Archive,
		archivePrefix: cfg.ArchiveKeyPrefix,
		stats:         cfg.Stats,
		metrics:       cfg.Metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// Handle authenticates token and runs the pipeline for its user.
func (s *DetectionService) Handle(ctx context.Context, token string, kind domain.Kind, f upload.FileUpload) (*domain.Detection, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		s.fail(StageAuthenticate, kind, err)
		return nil, fmt.Errorf("%s: %w", StageAuthenticate, err)
	}
	return s.Analyze(ctx, userID, kind, f)
}

// Analyze runs the pipeline for an already authenticated user. No record is
// written unless every stage succeeds, and the stored file is removed when a
// later stage fails.
func (s *DetectionService) Analyze(ctx context.Context, userID int64, kind domain.Kind, f upload.FileUpload) (*domain.Detection, error) {
	log := s.logger.WithFields(logrus.Fields{"user_id": userID, "kind": kind})

	stored, err := s.receiver.Receive(ctx, kind, f)
	if err != nil {
		s.fail(StageStore, kind, err)
		log.WithError(err).WithField("stage", StageStore).Warn("upload rejected")
		return nil, fmt.Errorf("%s: %w", StageStore, err)
	}
	s.metrics.ObserveUpload(string(kind), stored.Size)
	log = log.WithField("file", stored.Name)

	start := s.now()
	result, err := s.analyzer.Analyze(ctx, kind, stored.Path, stored.OriginalName, stored.MimeType)
	s.metrics.ObserveInference(string(kind), s.now().Sub(start))
	if err != nil {
		s.removeFile(log, stored.Path)
		s.fail(StageAnalyze, kind, err)
		log.WithError(err).WithField("stage", StageAnalyze).Error("analysis failed")
		return nil, fmt.Errorf("%s: %w", StageAnalyze, err)
	}

	detection := &domain.Detection{
		ID:        uuid.NewString(),
		UserID:    userID,
		FileName:  stored.OriginalName,
		FileType:  kind,
		FileSize:  stored.Size,
		FilePath:  stored.Path,
		FileURL:   stored.URL,
		MimeType:  stored.MimeType,
		Result:    *result,
		CreatedAt: s.now().UTC(),
	}
	if detection.FileName == "" {
		detection.FileName = stored.Name
	}

	if s.archive != nil {
		key := storage.Key(s.archivePrefix, strconv.FormatInt(userID, 10), stored.Name)
		location, err := s.archive.Upload(ctx, stored.Path, key, stored.MimeType)
		if err != nil {
			log.WithError(err).Warn("archive upload failed, keeping local copy only")
		} else {
			detection.ArchiveLocation = location
		}
	}

	if err := s.detections.Create(ctx, detection); err != nil {
		s.removeFile(log, stored.Path)
		s.removeArchived(ctx, log, detection.ArchiveLocation)
		s.fail(StageRecord, kind, err)
		log.WithError(err).WithField("stage", StageRecord).Error("persist detection failed")
		return nil, fmt.Errorf("%s: %w", StageRecord, err)
	}

	s.invalidate(userID)
	s.metrics.RecordDetection(string(kind), metrics.OutcomeSuccess)
	log.WithFields(logrus.Fields{
		"detection_id":    detection.ID,
		"is_deepfake":     result.IsDeepfake,
		"confidence":      result.Confidence,
		"real_percentage": result.RealPercentage,
		"fake_percentage": result.FakePercentage,
	}).Info("analysis complete")

	return detection, nil
}

// Get returns one of the user's detections.
func (s *DetectionService) Get(ctx context.Context, userID int64, id string) (*domain.Detection, error) {
	return s.detections.GetByID(ctx, id, userID)
}

// List returns the user's detections, newest first.
func (s *DetectionService) List(ctx context.Context, userID int64) ([]domain.Detection, error) {
	return s.detections.ListByOwner(ctx, userID, 0)
}

// Delete removes the record and its stored copies.
func (s *DetectionService) Delete(ctx context.Context, userID int64, id string) error {
	d, err := s.detections.DeleteByID(ctx, id, userID)
	if err != nil {
		return err
	}
	log := s.logger.WithFields(logrus.Fields{"user_id": userID, "detection_id": id})
	s.removeFile(log, d.FilePath)
	s.removeArchived(ctx, log, d.ArchiveLocation)
	s.invalidate(userID)
	log.Info("detection deleted")
	return nil
}

// OpenFile locates the uploaded file of a detection, falling back to the
// archive when the local copy is gone.
func (s *DetectionService) OpenFile(ctx context.Context, userID int64, id string) (*FileContent, error) {
	d, err := s.detections.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(d.FilePath); err == nil && info.Mode().IsRegular() {
		return &FileContent{
			Path:        d.FilePath,
			Size:        info.Size(),
			Name:        d.FileName,
			ContentType: d.MimeType,
		}, nil
	}

	if s.archive != nil && d.ArchiveLocation != "" {
		obj, err := s.archive.Open(ctx, d.ArchiveLocation)
		if err != nil {
			s.logger.WithError(err).WithField("detection_id", id).Warn("open archived file failed")
		} else {
			contentType := obj.ContentType
			if contentType == "" {
				contentType = d.MimeType
			}
			return &FileContent{
				Body:        obj.Body,
				Size:        obj.Size,
				Name:        d.FileName,
				ContentType: contentType,
			}, nil
		}
	}

	return nil, apperr.New(apperr.KindNotFound, "File not found")
}

func (s *DetectionService) fail(stage string, kind domain.Kind, err error) {
	s.metrics.RecordPipelineFailure(stage, string(apperr.KindOf(err)))
	s.metrics.RecordDetection(string(kind), metrics.OutcomeFailure)
}

func (s *DetectionService) invalidate(userID int64) {
	if s.stats != nil {
		s.stats.Invalidate(userID)
	}
}

func (s *DetectionService) removeFile(log logrus.FieldLogger, path string) {
	if err := s.receiver.Remove(path); err != nil {
		log.WithError(err).WithField("path", path).Warn("remove stored file failed")
	}
}

func (s *DetectionService) removeArchived(ctx context.Context, log logrus.FieldLogger, location string) {
	if s.archive == nil || location == "" {
		return
	}
	// the request may already be cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.archive.Delete(ctx, location); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).WithField("location", location).Warn("delete archived file failed")
	}
}
