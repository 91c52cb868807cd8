package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/classroll/attendancebackend/media"
	"github.com/classroll/attendancebackend/models"
	"github.com/classroll/attendancebackend/repository"
	"gorm.io/gorm"
)

// EmbeddingService turns face crops into stored embedding vectors. Generation
// is idempotent per (crop, model): an existing embedding is returned untouched
// unless force is set, and concurrent calls for the same crop are serialized.
type EmbeddingService struct {
	cropRepo      repository.FaceCropRepositoryInterface
	embeddingRepo repository.EmbeddingRepositoryInterface
	models        ModelRegistry
	source        CropSource
	timeout       time.Duration
	locks         keyedMutex
}

// NewEmbeddingService creates a new embedding service
func NewEmbeddingService(
	cropRepo repository.FaceCropRepositoryInterface,
	embeddingRepo repository.EmbeddingRepositoryInterface,
	registry ModelRegistry,
	source CropSource,
	timeout time.Duration,
) *EmbeddingService {
	return &EmbeddingService{
		cropRepo:      cropRepo,
		embeddingRepo: embeddingRepo,
		models:        registry,
		source:        source,
		timeout:       timeout,
	}
}

// Generate produces the embedding for (crop, model). When an embedding
// already exists and force is false the stored row is returned unchanged;
// force recomputes and overwrites in place.
func (s *EmbeddingService) Generate(ctx context.Context, cropID uint, model string, force bool) (*models.FaceEmbedding, error) {
	embedder, err := s.models.Get(model)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(fmt.Sprintf("crop:%d:%s", cropID, model))
	defer unlock()

	crop, err := s.cropRepo.GetByID(cropID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCropNotFound
		}
		return nil, err
	}

	existing, err := s.embeddingRepo.GetByCropAndModel(cropID, model)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil && !force {
		return existing, nil
	}

	if crop.Image == nil {
		return nil, fmt.Errorf("crop %d has no source image: %w", cropID, ErrImageUnreadable)
	}

	img, sourceHash, err := s.source.LoadRegion(crop.Image.Path, crop.X, crop.Y, crop.Width, crop.Height)
	if err != nil {
		if errors.Is(err, media.ErrRegionOutOfBounds) {
			return nil, fmt.Errorf("crop %d: %w", cropID, ErrNoFaceInCrop)
		}
		return nil, fmt.Errorf("crop %d: %v: %w", cropID, err, ErrImageUnreadable)
	}

	vector, err := s.embedWithTimeout(ctx, embedder, img)
	if err != nil {
		return nil, err
	}
	if len(vector) != embedder.Dim() {
		return nil, fmt.Errorf("model %s returned %d-dim vector, declared %d", model, len(vector), embedder.Dim())
	}

	embedding := existing
	if embedding == nil {
		embedding = &models.FaceEmbedding{CropID: cropID, Model: model}
	}
	embedding.SetEmbedding(vector)
	embedding.SourceHash = sourceHash

	if err := s.embeddingRepo.Upsert(embedding); err != nil {
		return nil, err
	}

	log.Printf("embedding: generated %d-dim %s embedding for crop %d (force=%v)", len(vector), model, cropID, force)
	return embedding, nil
}

// embedWithTimeout bounds a single model inference by the configured per-call
// deadline. The inference itself cannot be interrupted; a late result is
// discarded.
func (s *EmbeddingService) embedWithTimeout(ctx context.Context, embedder Embedder, img image.Image) ([]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type result struct {
		vector []float32
		err    error
	}
	done := make(chan result, 1)
	go func() {
		vector, err := embedder.Embed(img)
		done <- result{vector, err}
	}()

	select {
	case res := <-done:
		return res.vector, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrGenerationTimeout
		}
		return nil, ctx.Err()
	}
}
