package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/classroll/attendancebackend/models"
	"github.com/classroll/attendancebackend/repository"
	"gorm.io/gorm"
)

type ClassHandler struct {
	ClassRepo   repository.ClassRepositoryInterface
	StudentRepo repository.StudentRepositoryInterface
	SessionRepo repository.SessionRepositoryInterface
}

type classRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

func (ch *ClassHandler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req classRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	class := &models.Class{Name: req.Name}
	if err := ch.ClassRepo.Create(class); err != nil {
		log.Printf("Error creating class '%s': %v", req.Name, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create class"})
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

func (ch *ClassHandler) ListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := ch.ClassRepo.ListAll()
	if err != nil {
		log.Printf("Error listing classes: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list classes"})
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

func (ch *ClassHandler) GetClass(w http.ResponseWriter, r *http.Request) {
	classID, err := parseUintParam(r, "class_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	class, err := ch.ClassRepo.GetByID(classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Class not found"})
		} else {
			log.Printf("Error fetching class %d: %v", classID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch class"})
		}
		return
	}
	writeJSON(w, http.StatusOK, class)
}

func (ch *ClassHandler) UpdateClass(w http.ResponseWriter, r *http.Request) {
	classID, err := parseUintParam(r, "class_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var req classRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	class, err := ch.ClassRepo.GetByID(classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Class not found"})
		} else {
			log.Printf("Error fetching class %d for update: %v", classID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch class"})
		}
		return
	}

	class.Name = req.Name
	if err := ch.ClassRepo.Update(class); err != nil {
		log.Printf("Error updating class %d: %v", classID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update class"})
		return
	}
	writeJSON(w, http.StatusOK, class)
}

func (ch *ClassHandler) DeleteClass(w http.ResponseWriter, r *http.Request) {
	classID, err := parseUintParam(r, "class_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := ch.ClassRepo.Delete(classID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Class not found"})
		} else {
			log.Printf("Error deleting class %d: %v", classID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete class"})
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ch *ClassHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	classID, err := parseUintParam(r, "class_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	students, err := ch.StudentRepo.ListByClassID(classID)
	if err != nil {
		log.Printf("Error listing students for class %d: %v", classID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list students"})
		return
	}
	writeJSON(w, http.StatusOK, students)
}

func (ch *ClassHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	classID, err := parseUintParam(r, "class_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sessions, err := ch.SessionRepo.ListByClassID(classID)
	if err != nil {
		log.Printf("Error listing sessions for class %d: %v", classID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list sessions"})
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}
