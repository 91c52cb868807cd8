package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/classroll/attendancebackend/models"
	"gorm.io/gorm"
)

// StudentRepository handles database operations for Student entities
type StudentRepository struct {
	DB *gorm.DB
}

// NewStudentRepository creates a new instance of StudentRepository
func NewStudentRepository(db *gorm.DB) *StudentRepository {
	return &StudentRepository{DB: db}
}

// Create creates a new student record in the database
func (r *StudentRepository) Create(student *models.Student) error {
	now := time.Now().Unix()
	if student.CreatedAt == 0 {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	err := r.DB.Create(student).Error
	if err != nil {
		return fmt.Errorf("failed to create student %s: %w", student.Name, err)
	}
	return nil
}

// GetByID retrieves a student by their ID
func (r *StudentRepository) GetByID(id uint) (*models.Student, error) {
	var student models.Student
	err := r.DB.First(&student, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get student by ID %d: %w", id, err)
	}
	return &student, nil
}

// ListByClassID retrieves all students enrolled in a class, ordered by name
func (r *StudentRepository) ListByClassID(classID uint) ([]models.Student, error) {
	var students []models.Student
	err := r.DB.Where("class_id = ?", classID).Order("name ASC").Find(&students).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list students for class ID %d: %w", classID, err)
	}
	return students, nil
}

// Update updates an existing student's name
func (r *StudentRepository) Update(student *models.Student) error {
	student.UpdatedAt = time.Now().Unix()
	result := r.DB.Model(&models.Student{ID: student.ID}).Updates(models.Student{
		Name:      student.Name,
		UpdatedAt: student.UpdatedAt,
	})

	if result.Error != nil {
		return fmt.Errorf("failed to update student ID %d: %w", student.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a student by their ID. Crops assigned to the student revert
// to unidentified rather than being deleted with it.
func (r *StudentRepository) Delete(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.FaceCrop{}).
			Where("student_id = ?", id).
			Updates(map[string]interface{}{
				"student_id":            gorm.Expr("NULL"),
				"confidence":            gorm.Expr("NULL"),
				"identification_source": models.IdentificationNone,
				"updated_at":            time.Now().Unix(),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to unassign crops of student ID %d: %w", id, err)
		}

		result := tx.Delete(&models.Student{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete student ID %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// CountByNamePrefix returns how many students in a class have a name starting
// with the given prefix. Used to number cluster placeholder students.
func (r *StudentRepository) CountByNamePrefix(classID uint, prefix string) (int64, error) {
	var count int64
	err := r.DB.Model(&models.Student{}).
		Where("class_id = ? AND name LIKE ?", classID, prefix+"%").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count students with prefix '%s' in class %d: %w", prefix, classID, err)
	}
	return count, nil
}
