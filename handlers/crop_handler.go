package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/classroll/attendancebackend/models"
	"github.com/classroll/attendancebackend/repository"
	"github.com/classroll/attendancebackend/services"
	"gorm.io/gorm"
)

type FaceCropHandler struct {
	CropRepo    repository.FaceCropRepositoryInterface
	SessionRepo repository.SessionRepositoryInterface
	Matcher     *services.MatcherService
}

type cropRequest struct {
	ImageID uint `json:"image_id" validate:"required,gt=0"`
	X       int  `json:"x" validate:"gte=0"`
	Y       int  `json:"y" validate:"gte=0"`
	Width   int  `json:"width" validate:"required,gt=0"`
	Height  int  `json:"height" validate:"required,gt=0"`
}

// AddCrop registers a detected face region against a stored session image.
// The crop starts unidentified; the engine decides whose face it is later.
func (fh *FaceCropHandler) AddCrop(w http.ResponseWriter, r *http.Request) {
	var req cropRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := fh.SessionRepo.GetImageByID(req.ImageID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Image with provided image_id not found"})
		} else {
			log.Printf("Error checking image %d before adding crop: %v", req.ImageID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to verify image"})
		}
		return
	}

	crop := &models.FaceCrop{
		ImageID:              req.ImageID,
		X:                    req.X,
		Y:                    req.Y,
		Width:                req.Width,
		Height:               req.Height,
		IdentificationSource: models.IdentificationNone,
	}
	if err := fh.CropRepo.Create(crop); err != nil {
		log.Printf("Error creating crop for image %d: %v", req.ImageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create crop"})
		return
	}
	writeJSON(w, http.StatusCreated, crop)
}

func (fh *FaceCropHandler) GetCrop(w http.ResponseWriter, r *http.Request) {
	cropID, err := parseUintParam(r, "crop_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	crop, err := fh.CropRepo.GetByID(cropID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Crop not found"})
		} else {
			log.Printf("Error fetching crop %d: %v", cropID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch crop"})
		}
		return
	}
	writeJSON(w, http.StatusOK, crop)
}

func (fh *FaceCropHandler) ListCropsByImage(w http.ResponseWriter, r *http.Request) {
	imageID, err := parseUintParam(r, "image_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	crops, err := fh.CropRepo.ListByImageID(imageID)
	if err != nil {
		log.Printf("Error listing crops for image %d: %v", imageID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list crops"})
		return
	}
	writeJSON(w, http.StatusOK, crops)
}

// DeleteCrop removes a crop record; its embeddings are removed with it.
func (fh *FaceCropHandler) DeleteCrop(w http.ResponseWriter, r *http.Request) {
	cropID, err := parseUintParam(r, "crop_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := fh.CropRepo.Delete(cropID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Crop not found"})
		} else {
			log.Printf("Error deleting crop %d: %v", cropID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete crop"})
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TagCrop assigns a crop to a student by hand
func (fh *FaceCropHandler) TagCrop(w http.ResponseWriter, r *http.Request) {
	cropID, err := parseUintParam(r, "crop_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var req struct {
		StudentID uint `json:"student_id" validate:"required,gt=0"`
	}
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := fh.Matcher.TagManual(cropID, req.StudentID); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Crop tagged"})
}

// UntagCrop reverts a crop to unidentified
func (fh *FaceCropHandler) UntagCrop(w http.ResponseWriter, r *http.Request) {
	cropID, err := parseUintParam(r, "crop_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := fh.Matcher.Untag(cropID); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Crop untagged"})
}
