package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/classroll/attendancebackend/models"
	"github.com/classroll/attendancebackend/repository"
	"gorm.io/gorm"
)

type StudentHandler struct {
	StudentRepo repository.StudentRepositoryInterface
	ClassRepo   repository.ClassRepositoryInterface
	CropRepo    repository.FaceCropRepositoryInterface
}

type studentRequest struct {
	ClassID uint   `json:"class_id" validate:"required,gt=0"`
	Name    string `json:"name" validate:"required,min=1,max=200"`
}

func (sh *StudentHandler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := sh.ClassRepo.GetByID(req.ClassID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Class with provided class_id not found"})
		} else {
			log.Printf("Error checking class %d before creating student: %v", req.ClassID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to verify class"})
		}
		return
	}

	student := &models.Student{ClassID: req.ClassID, Name: req.Name}
	if err := sh.StudentRepo.Create(student); err != nil {
		log.Printf("Error creating student '%s': %v", req.Name, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create student"})
		return
	}
	writeJSON(w, http.StatusCreated, student)
}

func (sh *StudentHandler) GetStudent(w http.ResponseWriter, r *http.Request) {
	studentID, err := parseUintParam(r, "student_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	student, err := sh.StudentRepo.GetByID(studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Student not found"})
		} else {
			log.Printf("Error fetching student %d: %v", studentID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch student"})
		}
		return
	}
	writeJSON(w, http.StatusOK, student)
}

func (sh *StudentHandler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	studentID, err := parseUintParam(r, "student_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var req struct {
		Name string `json:"name" validate:"required,min=1,max=200"`
	}
	if !decodeAndValidate(w, r, &req) {
		return
	}

	student, err := sh.StudentRepo.GetByID(studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Student not found"})
		} else {
			log.Printf("Error fetching student %d for update: %v", studentID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch student"})
		}
		return
	}

	student.Name = req.Name
	if err := sh.StudentRepo.Update(student); err != nil {
		log.Printf("Error updating student %d: %v", studentID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update student"})
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// DeleteStudent removes a student; their crops revert to unidentified rather
// than being deleted, so the detections can be reassigned later.
func (sh *StudentHandler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	studentID, err := parseUintParam(r, "student_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := sh.StudentRepo.Delete(studentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Student not found"})
		} else {
			log.Printf("Error deleting student %d: %v", studentID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete student"})
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (sh *StudentHandler) ListCrops(w http.ResponseWriter, r *http.Request) {
	studentID, err := parseUintParam(r, "student_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	crops, err := sh.CropRepo.ListByStudentID(studentID)
	if err != nil {
		log.Printf("Error listing crops for student %d: %v", studentID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list crops"})
		return
	}
	writeJSON(w, http.StatusOK, crops)
}
