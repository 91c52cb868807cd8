package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/classroll/attendancebackend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttendanceRepository handles database operations for manual attendance overrides
type AttendanceRepository struct {
	DB *gorm.DB
}

// NewAttendanceRepository creates a new instance of AttendanceRepository
func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{DB: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *AttendanceRepository) WithTx(tx *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{DB: tx}
}

// Upsert creates or updates the manual override for a (session, student) pair
func (r *AttendanceRepository) Upsert(override *models.AttendanceOverride) error {
	now := time.Now().Unix()
	if override.CreatedAt == 0 {
		override.CreatedAt = now
	}
	override.UpdatedAt = now

	err := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_present", "updated_at"}),
	}).Create(override).Error
	if err != nil {
		return fmt.Errorf("failed to upsert override for session %d student %d: %w", override.SessionID, override.StudentID, err)
	}
	return nil
}

// Get retrieves the manual override for a (session, student) pair
func (r *AttendanceRepository) Get(sessionID, studentID uint) (*models.AttendanceOverride, error) {
	var override models.AttendanceOverride
	err := r.DB.Where("session_id = ? AND student_id = ?", sessionID, studentID).First(&override).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get override for session %d student %d: %w", sessionID, studentID, err)
	}
	return &override, nil
}

// Delete removes the manual override for a (session, student) pair, reverting
// the pair to automatic-derived presence. Deleting a pair with no override is
// a no-op, not an error.
func (r *AttendanceRepository) Delete(sessionID, studentID uint) error {
	result := r.DB.Where("session_id = ? AND student_id = ?", sessionID, studentID).
		Delete(&models.AttendanceOverride{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete override for session %d student %d: %w", sessionID, studentID, result.Error)
	}
	return nil
}

// ListByStudent retrieves all manual overrides recorded for a student
func (r *AttendanceRepository) ListByStudent(studentID uint) ([]models.AttendanceOverride, error) {
	var overrides []models.AttendanceOverride
	err := r.DB.Where("student_id = ?", studentID).Find(&overrides).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides for student %d: %w", studentID, err)
	}
	return overrides, nil
}

// ListByClass retrieves all manual overrides for a class, optionally
// restricted to the given sessions
func (r *AttendanceRepository) ListByClass(classID uint, sessionIDs []uint) ([]models.AttendanceOverride, error) {
	query := r.DB.
		Joins("JOIN sessions ON attendance_overrides.session_id = sessions.id").
		Where("sessions.class_id = ?", classID)
	if len(sessionIDs) > 0 {
		query = query.Where("attendance_overrides.session_id IN ?", sessionIDs)
	}

	var overrides []models.AttendanceOverride
	err := query.Find(&overrides).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides for class %d: %w", classID, err)
	}
	return overrides, nil
}
