package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/classroll/attendancebackend/models"
	"gorm.io/gorm"
)

// FaceCropRepository handles database operations for FaceCrop entities
type FaceCropRepository struct {
	DB *gorm.DB
}

// NewFaceCropRepository creates a new instance of FaceCropRepository
func NewFaceCropRepository(db *gorm.DB) *FaceCropRepository {
	return &FaceCropRepository{DB: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *FaceCropRepository) WithTx(tx *gorm.DB) *FaceCropRepository {
	return &FaceCropRepository{DB: tx}
}

// Create creates a new face crop record in the database
func (r *FaceCropRepository) Create(crop *models.FaceCrop) error {
	now := time.Now().Unix()
	if crop.CreatedAt == 0 {
		crop.CreatedAt = now
	}
	crop.UpdatedAt = now
	if crop.IdentificationSource == "" {
		crop.IdentificationSource = models.IdentificationNone
	}

	err := r.DB.Create(crop).Error
	if err != nil {
		return fmt.Errorf("failed to create face crop for image %d: %w", crop.ImageID, err)
	}
	return nil
}

// GetByID retrieves a face crop by its ID, preloading the source image, its
// session and the assigned student if any
func (r *FaceCropRepository) GetByID(id uint) (*models.FaceCrop, error) {
	var crop models.FaceCrop
	err := r.DB.Preload("Image").Preload("Image.Session").Preload("Student").First(&crop, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get face crop by ID %d: %w", id, err)
	}
	return &crop, nil
}

// ListByImageID retrieves all crops of a session image
func (r *FaceCropRepository) ListByImageID(imageID uint) ([]models.FaceCrop, error) {
	var crops []models.FaceCrop
	err := r.DB.Preload("Student").Where("image_id = ?", imageID).Order("id ASC").Find(&crops).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list crops for image %d: %w", imageID, err)
	}
	return crops, nil
}

// ListByStudentID retrieves all crops currently assigned to a student
func (r *FaceCropRepository) ListByStudentID(studentID uint) ([]models.FaceCrop, error) {
	var crops []models.FaceCrop
	err := r.DB.Where("student_id = ?", studentID).Order("id ASC").Find(&crops).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list crops for student %d: %w", studentID, err)
	}
	return crops, nil
}

// Assign sets the crop's identification fields
func (r *FaceCropRepository) Assign(cropID, studentID uint, source string, confidence *float32, model *string) error {
	updates := map[string]interface{}{
		"student_id":            studentID,
		"identification_source": source,
		"updated_at":            time.Now().Unix(),
	}
	if confidence != nil {
		updates["confidence"] = *confidence
	} else {
		updates["confidence"] = gorm.Expr("NULL")
	}
	if model != nil {
		updates["embedding_model"] = *model
	}

	result := r.DB.Model(&models.FaceCrop{}).Where("id = ?", cropID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to assign crop %d to student %d: %w", cropID, studentID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AssignIfUnidentified sets the identification fields only if the crop is
// still unassigned. Returns false when another operation claimed the crop in
// the meantime; callers treat that as a skip, not an error.
func (r *FaceCropRepository) AssignIfUnidentified(cropID, studentID uint, source string, confidence *float32, model *string) (bool, error) {
	updates := map[string]interface{}{
		"student_id":            studentID,
		"identification_source": source,
		"updated_at":            time.Now().Unix(),
	}
	if confidence != nil {
		updates["confidence"] = *confidence
	}
	if model != nil {
		updates["embedding_model"] = *model
	}

	result := r.DB.Model(&models.FaceCrop{}).
		Where("id = ? AND student_id IS NULL", cropID).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to assign crop %d to student %d: %w", cropID, studentID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Unassign clears the crop's identification fields, reverting it to unidentified
func (r *FaceCropRepository) Unassign(cropID uint) error {
	result := r.DB.Model(&models.FaceCrop{}).Where("id = ?", cropID).Updates(map[string]interface{}{
		"student_id":            gorm.Expr("NULL"),
		"confidence":            gorm.Expr("NULL"),
		"identification_source": models.IdentificationNone,
		"updated_at":            time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to unassign crop %d: %w", cropID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReassignStudent moves every crop of one student to another, preserving each
// crop's identification source and confidence. Used by identity merge.
func (r *FaceCropRepository) ReassignStudent(sourceStudentID, targetStudentID uint) (int64, error) {
	result := r.DB.Model(&models.FaceCrop{}).
		Where("student_id = ?", sourceStudentID).
		Updates(map[string]interface{}{
			"student_id": targetStudentID,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reassign crops from student %d to %d: %w", sourceStudentID, targetStudentID, result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes a face crop by its ID
func (r *FaceCropRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.FaceCrop{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete face crop ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
