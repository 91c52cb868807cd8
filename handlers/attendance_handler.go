package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/classroll/attendancebackend/services"
)

type AttendanceHandler struct {
	Attendance *services.AttendanceService
}

// Report returns the attendance matrix for a class. The optional "sessions"
// query parameter is a comma-separated list of session IDs limiting the
// columns.
func (ah *AttendanceHandler) Report(w http.ResponseWriter, r *http.Request) {
	classID, err := parseUintParam(r, "class_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var sessionIDs []uint
	if raw := r.URL.Query().Get("sessions"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
			if err != nil || id == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid session id in sessions filter: " + part})
				return
			}
			sessionIDs = append(sessionIDs, uint(id))
		}
	}

	matrix, err := ah.Attendance.Report(classID, sessionIDs)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matrix)
}

type markRequest struct {
	StudentID uint  `json:"student_id" validate:"required,gt=0"`
	IsPresent *bool `json:"is_present" validate:"required"`
}

// Mark records a manual presence override for a (session, student) pair
func (ah *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUintParam(r, "session_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var req markRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := ah.Attendance.Mark(sessionID, req.StudentID, *req.IsPresent); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Attendance marked"})
}

// Unmark removes a manual override, reverting the pair to automatic presence
func (ah *AttendanceHandler) Unmark(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUintParam(r, "session_id")
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

	if err := ah.Attendance.Unmark(sessionID, req.StudentID); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Attendance override removed"})
}
