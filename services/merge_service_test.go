package services

import (
	"context"
	"errors"
	"testing"

	"github.com/classroll/attendancebackend/models"
	"gorm.io/gorm"
)

type mergeFixture struct {
	*fixture
	merges  *MergeService
	class   *models.Class
	session *models.Session
	image   *models.SessionImage
	target  *models.Student
	source  *models.Student
}

func newMergeFixture(t *testing.T) *mergeFixture {
	f := newFixture(t)
	class := f.createClass("CS101")
	session := f.createSession(class.ID, "Week 1")
	return &mergeFixture{
		fixture: f,
		merges:  NewMergeService(f.db, f.students),
		class:   class,
		session: session,
		image:   f.createImage(session.ID),
		target:  f.createStudent(class.ID, "Alice"),
		source:  f.createStudent(class.ID, "Week 1_Student_1"),
	}
}

func TestMergeTransfersCrops(t *testing.T) {
	mf := newMergeFixture(t)
	crop1 := mf.labeledCrop(mf.image.ID, mf.source.ID, testModel, unitVec(1, 0))
	crop2 := mf.labeledCrop(mf.image.ID, mf.source.ID, testModel, unitVec(0.99, 0.01))
	kept := mf.labeledCrop(mf.image.ID, mf.target.ID, testModel, unitVec(0.98, 0.02))

	result, err := mf.merges.Merge(context.Background(), mf.source.ID, mf.target.ID)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if result.CropsTransferred != 2 {
		t.Errorf("crops transferred = %d, want 2", result.CropsTransferred)
	}

	for _, cropID := range []uint{crop1.ID, crop2.ID, kept.ID} {
		crop, err := mf.crops.GetByID(cropID)
		if err != nil {
			t.Fatalf("failed to reload crop %d: %v", cropID, err)
		}
		if crop.StudentID == nil || *crop.StudentID != mf.target.ID {
			t.Errorf("crop %d not owned by target after merge", cropID)
		}
		// identification provenance survives the merge
		if crop.IdentificationSource != models.IdentificationManual {
			t.Errorf("crop %d source changed to %s", cropID, crop.IdentificationSource)
		}
	}

	if _, err := mf.students.GetByID(mf.source.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("source student still exists after merge: %v", err)
	}
}

func TestMergeMovesOverrides(t *testing.T) {
	mf := newMergeFixture(t)
	other := mf.createSession(mf.class.ID, "Week 2")

	// source has an override the target lacks, plus a conflicting one
	if err := mf.attendance.Upsert(&models.AttendanceOverride{SessionID: other.ID, StudentID: mf.source.ID, IsPresent: true}); err != nil {
		t.Fatalf("failed to seed source override: %v", err)
	}
	if err := mf.attendance.Upsert(&models.AttendanceOverride{SessionID: mf.session.ID, StudentID: mf.source.ID, IsPresent: true}); err != nil {
		t.Fatalf("failed to seed conflicting source override: %v", err)
	}
	if err := mf.attendance.Upsert(&models.AttendanceOverride{SessionID: mf.session.ID, StudentID: mf.target.ID, IsPresent: false}); err != nil {
		t.Fatalf("failed to seed target override: %v", err)
	}

	result, err := mf.merges.Merge(context.Background(), mf.source.ID, mf.target.ID)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if result.OverridesMerged != 1 {
		t.Errorf("overrides merged = %d, want 1", result.OverridesMerged)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("warnings = %v, want one conflict warning", result.Warnings)
	}

	moved, err := mf.attendance.Get(other.ID, mf.target.ID)
	if err != nil {
		t.Fatalf("moved override missing: %v", err)
	}
	if !moved.IsPresent {
		t.Errorf("moved override lost its value")
	}

	// the target's value wins the conflict
	conflicted, err := mf.attendance.Get(mf.session.ID, mf.target.ID)
	if err != nil {
		t.Fatalf("target override missing: %v", err)
	}
	if conflicted.IsPresent {
		t.Errorf("conflict resolution overwrote the target's override")
	}

	// no orphan overrides remain for the deleted student
	leftovers, err := mf.attendance.ListByStudent(mf.source.ID)
	if err != nil {
		t.Fatalf("failed to list source overrides: %v", err)
	}
	if len(leftovers) != 0 {
		t.Errorf("source overrides survived the merge: %+v", leftovers)
	}
}

func TestMergeRejectsSelfAndCrossClass(t *testing.T) {
	mf := newMergeFixture(t)

	if _, err := mf.merges.Merge(context.Background(), mf.target.ID, mf.target.ID); !errors.Is(err, ErrSelfMerge) {
		t.Errorf("self merge = %v, want ErrSelfMerge", err)
	}

	otherClass := mf.createClass("MATH200")
	outsider := mf.createStudent(otherClass.ID, "Mallory")
	if _, err := mf.merges.Merge(context.Background(), mf.source.ID, outsider.ID); !errors.Is(err, ErrCrossClassMerge) {
		t.Errorf("cross-class merge = %v, want ErrCrossClassMerge", err)
	}

	if _, err := mf.merges.Merge(context.Background(), 9999, mf.target.ID); !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("missing source = %v, want ErrStudentNotFound", err)
	}
}
