package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/classroll/attendancebackend/database"
	"github.com/classroll/attendancebackend/models"
	"gorm.io/gorm"
)

func setupRepos(t *testing.T) (*gorm.DB, *FaceCropRepository, *StudentRepository) {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db, NewFaceCropRepository(db), NewStudentRepository(db)
}

func seedCrop(t *testing.T, db *gorm.DB) (*models.FaceCrop, *models.Student) {
	t.Helper()
	class := &models.Class{Name: "CS101"}
	if err := db.Create(class).Error; err != nil {
		t.Fatalf("failed to create class: %v", err)
	}
	student := &models.Student{ClassID: class.ID, Name: "Alice"}
	if err := db.Create(student).Error; err != nil {
		t.Fatalf("failed to create student: %v", err)
	}
	session := &models.Session{ClassID: class.ID, Name: "Week 1", HeldAt: time.Now().Unix()}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	image := &models.SessionImage{SessionID: session.ID, Path: "photo.jpg"}
	if err := db.Create(image).Error; err != nil {
		t.Fatalf("failed to create image: %v", err)
	}
	crop := &models.FaceCrop{ImageID: image.ID, X: 0, Y: 0, Width: 10, Height: 10, IdentificationSource: models.IdentificationNone}
	if err := db.Create(crop).Error; err != nil {
		t.Fatalf("failed to create crop: %v", err)
	}
	return crop, student
}

func TestAssignIfUnidentified(t *testing.T) {
	db, crops, _ := setupRepos(t)
	crop, student := seedCrop(t, db)

	confidence := float32(0.8)
	model := "arcface"
	applied, err := crops.AssignIfUnidentified(crop.ID, student.ID, models.IdentificationAutomatic, &confidence, &model)
	if err != nil {
		t.Fatalf("first AssignIfUnidentified failed: %v", err)
	}
	if !applied {
		t.Fatal("first conditional assign did not apply")
	}

	// the crop is claimed now; a second conditional assign must be a no-op
	applied, err = crops.AssignIfUnidentified(crop.ID, student.ID, models.IdentificationAutomatic, &confidence, &model)
	if err != nil {
		t.Fatalf("second AssignIfUnidentified failed: %v", err)
	}
	if applied {
		t.Error("conditional assign applied to an already-identified crop")
	}

	reloaded, err := crops.GetByID(crop.ID)
	if err != nil {
		t.Fatalf("failed to reload crop: %v", err)
	}
	if !reloaded.IsIdentified() {
		t.Errorf("crop not identified after assign: %+v", reloaded)
	}
	if reloaded.EmbeddingModel == nil || *reloaded.EmbeddingModel != model {
		t.Errorf("embedding model not recorded")
	}
}

func TestStudentDeleteRevertsCrops(t *testing.T) {
	db, crops, students := setupRepos(t)
	crop, student := seedCrop(t, db)

	if err := crops.Assign(crop.ID, student.ID, models.IdentificationManual, nil, nil); err != nil {
		t.Fatalf("failed to assign crop: %v", err)
	}
	if err := students.Delete(student.ID); err != nil {
		t.Fatalf("failed to delete student: %v", err)
	}

	reloaded, err := crops.GetByID(crop.ID)
	if err != nil {
		t.Fatalf("crop removed with its student: %v", err)
	}
	if reloaded.StudentID != nil || reloaded.IdentificationSource != models.IdentificationNone {
		t.Errorf("crop did not revert to unidentified: %+v", reloaded)
	}
}
