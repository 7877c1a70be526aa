package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"deepfake-detector/internal/domain"
	"deepfake-detector/internal/repository"
)

// DefaultRecentLimit caps Recent when no limit is given.
const DefaultRecentLimit = 5

// StatsService aggregates a user's detections. Aggregates are cached per
// user for a short ttl and dropped whenever the user's records change.
type StatsService struct {
	detections repository.DetectionRepository
	cache      *cache.Cache

	// generation is bumped by Invalidate; a snapshot counted across a bump
	// is returned but not cached.
	mu         sync.Mutex
	generation map[int64]uint64
}

// NewStatsService returns a StatsService. ttl <= 0 disables caching.
func NewStatsService(detections repository.DetectionRepository, ttl time.Duration) *StatsService {
	s := &StatsService{detections: detections, generation: make(map[int64]uint64)}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	return s
}

// Stats returns total, image, video and deepfake counts. Total always equals
// Images+Videos and Deepfakes never exceeds Total.
func (s *StatsService) Stats(ctx context.Context, userID int64) (domain.Stats, error) {
	key := strconv.FormatInt(userID, 10)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.(domain.Stats), nil
		}
	}

	gen := s.currentGeneration(userID)
	image, video, fake := domain.KindImage, domain.KindVideo, true

	images, err := s.detections.CountByOwner(ctx, userID, domain.CountFilter{Kind: &image})
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count images: %w", err)
	}
	videos, err := s.detections.CountByOwner(ctx, userID, domain.CountFilter{Kind: &video})
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count videos: %w", err)
	}
	deepfakes, err := s.detections.CountByOwner(ctx, userID, domain.CountFilter{Deepfake: &fake})
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count deepfakes: %w", err)
	}

	stats := domain.Stats{
		Total:     images + videos,
		Images:    images,
		Videos:    videos,
		Deepfakes: min(deepfakes, images+videos),
	}
	if s.cache != nil {
		s.mu.Lock()
		if s.generation[userID] == gen {
			s.cache.SetDefault(key, stats)
		}
		s.mu.Unlock()
	}
	return stats, nil
}

// Recent returns the user's newest detections. limit <= 0 means DefaultRecentLimit.
func (s *StatsService) Recent(ctx context.Context, userID int64, limit int) ([]domain.Detection, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.detections.ListByOwner(ctx, userID, limit)
}

// Invalidate drops the cached aggregate of a user.
func (s *StatsService) Invalidate(userID int64) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	s.generation[userID]++
	s.cache.Delete(strconv.FormatInt(userID, 10))
	s.mu.Unlock()
}

func (s *StatsService) currentGeneration(userID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation[userID]
}
