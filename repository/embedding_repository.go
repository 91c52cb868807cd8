package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/classroll/attendancebackend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmbeddingRepository handles database operations for FaceEmbedding entities
type EmbeddingRepository struct {
	DB *gorm.DB
}

// NewEmbeddingRepository creates a new instance of EmbeddingRepository
func NewEmbeddingRepository(db *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{DB: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *EmbeddingRepository) WithTx(tx *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{DB: tx}
}

// Upsert writes the embedding for its (crop, model) pair, overwriting any
// previous vector for that pair
func (r *EmbeddingRepository) Upsert(embedding *models.FaceEmbedding) error {
	now := time.Now().Unix()
	if embedding.CreatedAt == 0 {
		embedding.CreatedAt = now
	}
	embedding.UpdatedAt = now

	err := r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "crop_id"}, {Name: "model"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"embedding_data", "dim", "source_hash", "updated_at",
		}),
	}).Create(embedding).Error
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for crop %d model %s: %w", embedding.CropID, embedding.Model, err)
	}
	return nil
}

// GetByCropAndModel retrieves the embedding of a crop under one model
func (r *EmbeddingRepository) GetByCropAndModel(cropID uint, model string) (*models.FaceEmbedding, error) {
	var embedding models.FaceEmbedding
	err := r.DB.Where("crop_id = ? AND model = ?", cropID, model).First(&embedding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get embedding for crop %d model %s: %w", cropID, model, err)
	}
	return &embedding, nil
}

// ListLabeledByClass retrieves all embeddings under one model whose crops are
// assigned to a student, restricted to the given class. This is the reference
// set for nearest-neighbor assignment; comparisons never cross model or class
// boundaries.
func (r *EmbeddingRepository) ListLabeledByClass(classID uint, model string) ([]models.FaceEmbedding, error) {
	var embeddings []models.FaceEmbedding
	err := r.DB.
		Joins("JOIN face_crops ON face_embeddings.crop_id = face_crops.id").
		Joins("JOIN session_images ON face_crops.image_id = session_images.id").
		Joins("JOIN sessions ON session_images.session_id = sessions.id").
		Where("sessions.class_id = ? AND face_embeddings.model = ? AND face_crops.student_id IS NOT NULL", classID, model).
		Preload("Crop").
		Find(&embeddings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list labeled embeddings for class %d model %s: %w", classID, model, err)
	}
	return embeddings, nil
}

// ListUnassignedBySession retrieves embeddings under one model whose crops
// belong to the session and carry no student assignment
func (r *EmbeddingRepository) ListUnassignedBySession(sessionID uint, model string) ([]models.FaceEmbedding, error) {
	var embeddings []models.FaceEmbedding
	err := r.DB.
		Joins("JOIN face_crops ON face_embeddings.crop_id = face_crops.id").
		Joins("JOIN session_images ON face_crops.image_id = session_images.id").
		Where("session_images.session_id = ? AND face_embeddings.model = ? AND face_crops.student_id IS NULL", sessionID, model).
		Preload("Crop").
		Find(&embeddings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned embeddings for session %d model %s: %w", sessionID, model, err)
	}
	return embeddings, nil
}

// ListUnassignedByClass retrieves embeddings under one model whose crops
// belong to any session of the class and carry no student assignment
func (r *EmbeddingRepository) ListUnassignedByClass(classID uint, model string) ([]models.FaceEmbedding, error) {
	var embeddings []models.FaceEmbedding
	err := r.DB.
		Joins("JOIN face_crops ON face_embeddings.crop_id = face_crops.id").
		Joins("JOIN session_images ON face_crops.image_id = session_images.id").
		Joins("JOIN sessions ON session_images.session_id = sessions.id").
		Where("sessions.class_id = ? AND face_embeddings.model = ? AND face_crops.student_id IS NULL", classID, model).
		Preload("Crop").
		Find(&embeddings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned embeddings for class %d model %s: %w", classID, model, err)
	}
	return embeddings, nil
}

// CountLabeledByClass returns the size of the reference set for a class and model
func (r *EmbeddingRepository) CountLabeledByClass(classID uint, model string) (int64, error) {
	var count int64
	err := r.DB.Model(&models.FaceEmbedding{}).
		Joins("JOIN face_crops ON face_embeddings.crop_id = face_crops.id").
		Joins("JOIN session_images ON face_crops.image_id = session_images.id").
		Joins("JOIN sessions ON session_images.session_id = sessions.id").
		Where("sessions.class_id = ? AND face_embeddings.model = ? AND face_crops.student_id IS NOT NULL", classID, model).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count labeled embeddings for class %d model %s: %w", classID, model, err)
	}
	return count, nil
}

// DeleteByCropID removes every embedding of a crop
func (r *EmbeddingRepository) DeleteByCropID(cropID uint) error {
	result := r.DB.Where("crop_id = ?", cropID).Delete(&models.FaceEmbedding{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete embeddings for crop %d: %w", cropID, result.Error)
	}
	return nil
}
