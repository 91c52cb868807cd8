package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/classroll/attendancebackend/media"
	"github.com/classroll/attendancebackend/models"
	"github.com/classroll/attendancebackend/repository"
	"github.com/classroll/attendancebackend/workers"
	"gorm.io/gorm"
)

// maxUploadBytes bounds one photo upload
const maxUploadBytes = 50 << 20

type SessionHandler struct {
	SessionRepo repository.SessionRepositoryInterface
	ClassRepo   repository.ClassRepositoryInterface
	Photos      *media.PhotoStore
	Embeddings  *workers.EmbeddingProcessor
}

type sessionRequest struct {
	ClassID uint   `json:"class_id" validate:"required,gt=0"`
	Name    string `json:"name" validate:"required,min=1,max=200"`
	HeldAt  int64  `json:"held_at" validate:"required"`
}

func (sh *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := sh.ClassRepo.GetByID(req.ClassID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Class with provided class_id not found"})
		} else {
			log.Printf("Error checking class %d before creating session: %v", req.ClassID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to verify class"})
		}
		return
	}

	session := &models.Session{ClassID: req.ClassID, Name: req.Name, HeldAt: req.HeldAt}
	if err := sh.SessionRepo.Create(session); err != nil {
		log.Printf("Error creating session '%s': %v", req.Name, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create session"})
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (sh *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUintParam(r, "session_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	session, err := sh.SessionRepo.GetByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		} else {
			log.Printf("Error fetching session %d: %v", sessionID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch session"})
		}
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (sh *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUintParam(r, "session_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := sh.SessionRepo.Delete(sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		} else {
			log.Printf("Error deleting session %d: %v", sessionID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete session"})
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage stores one session photograph and records it. Face detection
// happens upstream; crops are registered separately against the stored image.
func (sh *SessionHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUintParam(r, "session_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if _, err := sh.SessionRepo.GetByID(sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		} else {
			log.Printf("Error fetching session %d for upload: %v", sessionID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch session"})
		}
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid multipart form: " + err.Error()})
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing 'photo' form file"})
		return
	}
	defer file.Close()

	if !media.IsRasterImage(header.Filename) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unsupported image type: " + header.Filename})
		return
	}

	relPath, capturedAt, err := sh.Photos.Save(header.Filename, file)
	if err != nil {
		log.Printf("Error storing photo for session %d: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to store photo"})
		return
	}

	image := &models.SessionImage{
		SessionID:  sessionID,
		Path:       relPath,
		CapturedAt: capturedAt,
	}
	if err := sh.SessionRepo.AddImage(image); err != nil {
		log.Printf("Error recording image for session %d: %v", sessionID, err)
		if delErr := sh.Photos.Delete(relPath); delErr != nil {
			log.Printf("Error removing orphaned photo %s: %v", relPath, delErr)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to record image"})
		return
	}
	writeJSON(w, http.StatusCreated, image)
}

func (sh *SessionHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUintParam(r, "session_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	images, err := sh.SessionRepo.ListImagesBySessionID(sessionID)
	if err != nil {
		log.Printf("Error listing images for session %d: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list images"})
		return
	}
	writeJSON(w, http.StatusOK, images)
}

// QueueEmbeddings enqueues background embedding generation for every crop in
// the session.
func (sh *SessionHandler) QueueEmbeddings(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUintParam(r, "session_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var req struct {
		Model string `json:"model" validate:"required"`
		Force bool   `json:"force"`
	}
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := sh.SessionRepo.GetByID(sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		} else {
			log.Printf("Error fetching session %d for embedding queue: %v", sessionID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch session"})
		}
		return
	}

	queued, err := sh.Embeddings.QueueSession(sessionID, req.Model, req.Force)
	if err != nil {
		log.Printf("Error queueing embeddings for session %d: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to queue embedding jobs"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}
