package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/classroll/attendancebackend/models"
	"github.com/classroll/attendancebackend/repository"
	"gorm.io/gorm"
)

// MergeResult reports what one merge moved. Warnings list the sessions where
// both students carried a manual override with different values; the target's
// value was kept.
type MergeResult struct {
	SourceStudentID  uint     `json:"source_student_id"`
	TargetStudentID  uint     `json:"target_student_id"`
	CropsTransferred int64    `json:"crops_transferred"`
	OverridesMerged  int      `json:"overrides_merged"`
	Warnings         []string `json:"warnings,omitempty"`
}

// MergeService absorbs one student identity into another, typically a
// placeholder from the cluster bootstrapper into the real enrolled student.
type MergeService struct {
	db          *gorm.DB
	studentRepo repository.StudentRepositoryInterface
	locks       keyedMutex
}

// NewMergeService creates a new merge service
func NewMergeService(db *gorm.DB, studentRepo repository.StudentRepositoryInterface) *MergeService {
	return &MergeService{
		db:          db,
		studentRepo: studentRepo,
	}
}

// Merge moves every crop assignment and manual override from the source
// student to the target and deletes the source, all in one transaction. Crop
// identification source and confidence are preserved as they were. When both
// students hold an override for the same session the target's value wins and
// the conflict is reported as a warning.
func (s *MergeService) Merge(ctx context.Context, sourceID, targetID uint) (*MergeResult, error) {
	if sourceID == targetID {
		return nil, ErrSelfMerge
	}

	source, err := s.studentRepo.GetByID(sourceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	target, err := s.studentRepo.GetByID(targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	if source.ClassID != target.ClassID {
		return nil, ErrCrossClassMerge
	}

	// lock both students in ID order so concurrent merges over the same pair
	// cannot deadlock
	first, second := sourceID, targetID
	if first > second {
		first, second = second, first
	}
	unlockFirst := s.locks.lock(fmt.Sprintf("student:%d", first))
	defer unlockFirst()
	unlockSecond := s.locks.lock(fmt.Sprintf("student:%d", second))
	defer unlockSecond()

	result := &MergeResult{SourceStudentID: sourceID, TargetStudentID: targetID}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		txCrops := repository.NewFaceCropRepository(tx)
		moved, err := txCrops.ReassignStudent(sourceID, targetID)
		if err != nil {
			return err
		}
		result.CropsTransferred = moved

		var sourceOverrides []models.AttendanceOverride
		if err := tx.Where("student_id = ?", sourceID).Find(&sourceOverrides).Error; err != nil {
			return fmt.Errorf("failed to load overrides for student %d: %w", sourceID, err)
		}

		txOverrides := repository.NewAttendanceRepository(tx)
		for _, override := range sourceOverrides {
			existing, err := txOverrides.Get(override.SessionID, targetID)
			switch {
			case err == nil:
				if existing.IsPresent != override.IsPresent {
					result.Warnings = append(result.Warnings, fmt.Sprintf(
						"session %d: conflicting manual marks, kept target value %v",
						override.SessionID, existing.IsPresent))
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := txOverrides.Upsert(&models.AttendanceOverride{
					SessionID: override.SessionID,
					StudentID: targetID,
					IsPresent: override.IsPresent,
				}); err != nil {
					return err
				}
				result.OverridesMerged++
			default:
				return err
			}
		}

		if err := tx.Where("student_id = ?", sourceID).Delete(&models.AttendanceOverride{}).Error; err != nil {
			return fmt.Errorf("failed to delete overrides for student %d: %w", sourceID, err)
		}

		// delete the row directly; the repository's Delete would first revert
		// the crops to unidentified, which a merge must not do
		if err := tx.Delete(&models.Student{}, sourceID).Error; err != nil {
			return fmt.Errorf("failed to delete student %d: %w", sourceID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("merge: student %d absorbed into %d (%d crop(s), %d override(s), %d conflict(s))",
		sourceID, targetID, result.CropsTransferred, result.OverridesMerged, len(result.Warnings))
	return result, nil
}
