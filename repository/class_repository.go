package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/classroll/attendancebackend/models"
	"gorm.io/gorm"
)

// ClassRepository handles database operations for Class entities
type ClassRepository struct {
	DB *gorm.DB
}

// NewClassRepository creates a new instance of ClassRepository
func NewClassRepository(db *gorm.DB) *ClassRepository {
	return &ClassRepository{DB: db}
}

// Create creates a new class record in the database
func (r *ClassRepository) Create(class *models.Class) error {
	now := time.Now().Unix()
	if class.CreatedAt == 0 {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	err := r.DB.Create(class).Error
	if err != nil {
		return fmt.Errorf("failed to create class %s: %w", class.Name, err)
	}
	return nil
}

// GetByID retrieves a class by its ID
func (r *ClassRepository) GetByID(id uint) (*models.Class, error) {
	var class models.Class
	err := r.DB.First(&class, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get class by ID %d: %w", id, err)
	}
	return &class, nil
}

// ListAll retrieves all classes ordered by name
func (r *ClassRepository) ListAll() ([]models.Class, error) {
	var classes []models.Class
	err := r.DB.Order("name ASC").Find(&classes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	return classes, nil
}

// Update updates an existing class's name
func (r *ClassRepository) Update(class *models.Class) error {
	class.UpdatedAt = time.Now().Unix()
	result := r.DB.Model(&models.Class{ID: class.ID}).Updates(models.Class{
		Name:      class.Name,
		UpdatedAt: class.UpdatedAt,
	})

	if result.Error != nil {
		return fmt.Errorf("failed to update class ID %d: %w", class.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a class by its ID
func (r *ClassRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.Class{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete class ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
