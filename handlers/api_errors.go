package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/classroll/attendancebackend/services"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// serviceErrorCodes maps the engine's sentinel errors to a stable API code
// and HTTP status.
var serviceErrorCodes = []struct {
	err    error
	status int
	code   string
}{
	{services.ErrClassNotFound, http.StatusNotFound, "class_not_found"},
	{services.ErrCropNotFound, http.StatusNotFound, "crop_not_found"},
	{services.ErrStudentNotFound, http.StatusNotFound, "student_not_found"},
	{services.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{services.ErrModelUnavailable, http.StatusBadRequest, "model_unavailable"},
	{services.ErrImageUnreadable, http.StatusUnprocessableEntity, "image_unreadable"},
	{services.ErrNoFaceInCrop, http.StatusUnprocessableEntity, "no_face_in_crop"},
	{services.ErrGenerationTimeout, http.StatusGatewayTimeout, "generation_timeout"},
	{services.ErrMissingEmbedding, http.StatusConflict, "missing_embedding"},
	{services.ErrNoLabeledReferences, http.StatusConflict, "no_labeled_references"},
	{services.ErrInsufficientData, http.StatusConflict, "insufficient_data"},
	{services.ErrInvalidMaxClusters, http.StatusBadRequest, "invalid_max_clusters"},
	{services.ErrSelfMerge, http.StatusBadRequest, "self_merge"},
	{services.ErrCrossClassMerge, http.StatusBadRequest, "cross_class_merge"},
	{services.ErrCrossClassAssignment, http.StatusBadRequest, "cross_class_assignment"},
}

// WriteServiceError translates an engine error into the standardized error
// response, falling back to a logged 500 for anything unrecognized.
func WriteServiceError(w http.ResponseWriter, err error) {
	for _, mapping := range serviceErrorCodes {
		if errors.Is(err, mapping.err) {
			WriteAPIError(w, mapping.status, mapping.code, mapping.err.Error())
			return
		}
	}
	log.Printf("unhandled service error: %v", err)
	WriteAPIError(w, http.StatusInternalServerError, "internal_error", "an internal error occurred")
}
