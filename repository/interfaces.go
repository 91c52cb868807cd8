package repository

import (
	"github.com/classroll/attendancebackend/models"
)

// ClassRepositoryInterface defines the methods for class data operations
type ClassRepositoryInterface interface {
	Create(class *models.Class) error
	GetByID(id uint) (*models.Class, error)
	ListAll() ([]models.Class, error)
	Update(class *models.Class) error
	Delete(id uint) error
}

// StudentRepositoryInterface defines the methods for student data operations
type StudentRepositoryInterface interface {
	Create(student *models.Student) error
	GetByID(id uint) (*models.Student, error)
	ListByClassID(classID uint) ([]models.Student, error)
	Update(student *models.Student) error
	Delete(id uint) error
	CountByNamePrefix(classID uint, prefix string) (int64, error)
}

// SessionRepositoryInterface defines the methods for session data operations
type SessionRepositoryInterface interface {
	Create(session *models.Session) error
	GetByID(id uint) (*models.Session, error)
	ListByClassID(classID uint) ([]models.Session, error)
	Delete(id uint) error
	AddImage(image *models.SessionImage) error
	GetImageByID(id uint) (*models.SessionImage, error)
	ListImagesBySessionID(sessionID uint) ([]models.SessionImage, error)
}

// FaceCropRepositoryInterface defines the methods for face crop data operations
type FaceCropRepositoryInterface interface {
	Create(crop *models.FaceCrop) error
	GetByID(id uint) (*models.FaceCrop, error)
	ListByImageID(imageID uint) ([]models.FaceCrop, error)
	ListByStudentID(studentID uint) ([]models.FaceCrop, error)
	Assign(cropID, studentID uint, source string, confidence *float32, model *string) error
	AssignIfUnidentified(cropID, studentID uint, source string, confidence *float32, model *string) (bool, error)
	Unassign(cropID uint) error
	ReassignStudent(sourceStudentID, targetStudentID uint) (int64, error)
	Delete(id uint) error
}

// EmbeddingRepositoryInterface defines the methods for embedding data operations
type EmbeddingRepositoryInterface interface {
	Upsert(embedding *models.FaceEmbedding) error
	GetByCropAndModel(cropID uint, model string) (*models.FaceEmbedding, error)
	ListLabeledByClass(classID uint, model string) ([]models.FaceEmbedding, error)
	ListUnassignedBySession(sessionID uint, model string) ([]models.FaceEmbedding, error)
	ListUnassignedByClass(classID uint, model string) ([]models.FaceEmbedding, error)
	CountLabeledByClass(classID uint, model string) (int64, error)
	DeleteByCropID(cropID uint) error
}

// AttendanceRepositoryInterface defines the methods for manual override operations
type AttendanceRepositoryInterface interface {
	Upsert(override *models.AttendanceOverride) error
	Get(sessionID, studentID uint) (*models.AttendanceOverride, error)
	Delete(sessionID, studentID uint) error
	ListByStudent(studentID uint) ([]models.AttendanceOverride, error)
	ListByClass(classID uint, sessionIDs []uint) ([]models.AttendanceOverride, error)
}

// Compile-time checks that the GORM implementations satisfy the interfaces
var (
	_ ClassRepositoryInterface      = (*ClassRepository)(nil)
	_ StudentRepositoryInterface    = (*StudentRepository)(nil)
	_ SessionRepositoryInterface    = (*SessionRepository)(nil)
	_ FaceCropRepositoryInterface   = (*FaceCropRepository)(nil)
	_ EmbeddingRepositoryInterface  = (*EmbeddingRepository)(nil)
	_ AttendanceRepositoryInterface = (*AttendanceRepository)(nil)
)
