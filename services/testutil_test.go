package services

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/classroll/attendancebackend/database"
	"github.com/classroll/attendancebackend/models"
	"github.com/classroll/attendancebackend/repository"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

type fixture struct {
	t  *testing.T
	db *gorm.DB

	classes    *repository.ClassRepository
	students   *repository.StudentRepository
	sessions   *repository.SessionRepository
	crops      *repository.FaceCropRepository
	embeddings *repository.EmbeddingRepository
	attendance *repository.AttendanceRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	return &fixture{
		t:          t,
		db:         db,
		classes:    repository.NewClassRepository(db),
		students:   repository.NewStudentRepository(db),
		sessions:   repository.NewSessionRepository(db),
		crops:      repository.NewFaceCropRepository(db),
		embeddings: repository.NewEmbeddingRepository(db),
		attendance: repository.NewAttendanceRepository(db),
	}
}

func (f *fixture) createClass(name string) *models.Class {
	f.t.Helper()
	class := &models.Class{Name: name}
	if err := f.classes.Create(class); err != nil {
		f.t.Fatalf("failed to create class: %v", err)
	}
	return class
}

func (f *fixture) createStudent(classID uint, name string) *models.Student {
	f.t.Helper()
	student := &models.Student{ClassID: classID, Name: name}
	if err := f.students.Create(student); err != nil {
		f.t.Fatalf("failed to create student: %v", err)
	}
	return student
}

func (f *fixture) createSession(classID uint, name string) *models.Session {
	f.t.Helper()
	session := &models.Session{ClassID: classID, Name: name, HeldAt: time.Now().Unix()}
	if err := f.sessions.Create(session); err != nil {
		f.t.Fatalf("failed to create session: %v", err)
	}
	return session
}

func (f *fixture) createImage(sessionID uint) *models.SessionImage {
	f.t.Helper()
	img := &models.SessionImage{SessionID: sessionID, Path: fmt.Sprintf("session_%d/photo.jpg", sessionID)}
	if err := f.sessions.AddImage(img); err != nil {
		f.t.Fatalf("failed to create session image: %v", err)
	}
	return img
}

func (f *fixture) createCrop(imageID uint) *models.FaceCrop {
	f.t.Helper()
	crop := &models.FaceCrop{
		ImageID:              imageID,
		X:                    10,
		Y:                    10,
		Width:                100,
		Height:               100,
		IdentificationSource: models.IdentificationNone,
	}
	if err := f.crops.Create(crop); err != nil {
		f.t.Fatalf("failed to create crop: %v", err)
	}
	return crop
}

func (f *fixture) seedEmbedding(cropID uint, model string, vector []float32) *models.FaceEmbedding {
	f.t.Helper()
	embedding := &models.FaceEmbedding{CropID: cropID, Model: model}
	embedding.SetEmbedding(vector)
	if err := f.embeddings.Upsert(embedding); err != nil {
		f.t.Fatalf("failed to seed embedding for crop %d: %v", cropID, err)
	}
	return embedding
}

func (f *fixture) assignCrop(cropID, studentID uint, model string) {
	f.t.Helper()
	confidence := float32(1.0)
	if err := f.crops.Assign(cropID, studentID, models.IdentificationManual, &confidence, &model); err != nil {
		f.t.Fatalf("failed to assign crop %d: %v", cropID, err)
	}
}

// labeledCrop creates a crop with a stored embedding already assigned to the
// student, forming one reference for the matcher.
func (f *fixture) labeledCrop(imageID, studentID uint, model string, vector []float32) *models.FaceCrop {
	f.t.Helper()
	crop := f.createCrop(imageID)
	f.seedEmbedding(crop.ID, model, vector)
	f.assignCrop(crop.ID, studentID, model)
	return crop
}

// stubEmbedder is a deterministic in-memory Embedder for tests.
type stubEmbedder struct {
	model  string
	dim    int
	vector []float32
	err    error
	delay  time.Duration
}

func (se *stubEmbedder) Model() string { return se.model }
func (se *stubEmbedder) Dim() int      { return se.dim }

func (se *stubEmbedder) Embed(img image.Image) ([]float32, error) {
	if se.delay > 0 {
		time.Sleep(se.delay)
	}
	if se.err != nil {
		return nil, se.err
	}
	return se.vector, nil
}

// stubCropSource serves a fixed image and fingerprint for every region.
type stubCropSource struct {
	hash string
	err  error
}

func (scs *stubCropSource) LoadRegion(relPath string, x, y, w, h int) (image.Image, string, error) {
	if scs.err != nil {
		return nil, "", scs.err
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), scs.hash, nil
}

// unitVec pads a few leading components into a normalized 8-dim vector so
// cosine comparisons behave like the production 512-dim embeddings.
func unitVec(components ...float32) []float32 {
	vec := make([]float32, 8)
	copy(vec, components)
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1.0 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
