package services

import (
	"errors"
	"sort"

	"github.com/classroll/attendancebackend/database"
	"github.com/classroll/attendancebackend/models"
	"github.com/classroll/attendancebackend/repository"
	"github.com/facette/natsort"
	"gorm.io/gorm"
)

// AttendanceCell is one (student, session) entry of the matrix. Present is
// the effective value after overrides; DetectionCount always carries the raw
// automatic signal so an override never destroys it.
type AttendanceCell struct {
	SessionID      uint `json:"session_id"`
	Present        bool `json:"present"`
	DetectionCount int  `json:"detection_count"`
	Overridden     bool `json:"overridden"`
}

// SessionColumn describes one session column of the matrix.
type SessionColumn struct {
	SessionID uint   `json:"session_id"`
	Name      string `json:"name"`
	HeldAt    int64  `json:"held_at"`
}

// StudentAttendance is one matrix row with its summary statistics.
type StudentAttendance struct {
	StudentID        uint             `json:"student_id"`
	StudentName      string           `json:"student_name"`
	Cells            []AttendanceCell `json:"cells"`
	AttendedSessions int              `json:"attended_sessions"`
	TotalSessions    int              `json:"total_sessions"`
	AttendanceRate   float64          `json:"attendance_rate"`
}

// AttendanceMatrix is the full report for a class over the sessions in scope.
type AttendanceMatrix struct {
	ClassID  uint                `json:"class_id"`
	Sessions []SessionColumn     `json:"sessions"`
	Rows     []StudentAttendance `json:"rows"`
}

// AttendanceService derives the presence matrix from crop assignments and
// manual overrides. The matrix is recomputed from current state on every
// call; nothing derived is persisted, so it can never drift.
type AttendanceService struct {
	querier        database.Querier
	classRepo      repository.ClassRepositoryInterface
	studentRepo    repository.StudentRepositoryInterface
	sessionRepo    repository.SessionRepositoryInterface
	attendanceRepo repository.AttendanceRepositoryInterface
}

// NewAttendanceService creates a new attendance service
func NewAttendanceService(
	querier database.Querier,
	classRepo repository.ClassRepositoryInterface,
	studentRepo repository.StudentRepositoryInterface,
	sessionRepo repository.SessionRepositoryInterface,
	attendanceRepo repository.AttendanceRepositoryInterface,
) *AttendanceService {
	return &AttendanceService{
		querier:        querier,
		classRepo:      classRepo,
		studentRepo:    studentRepo,
		sessionRepo:    sessionRepo,
		attendanceRepo: attendanceRepo,
	}
}

// Report builds the attendance matrix for a class. An empty sessionIDs slice
// means every session of the class. Presence per cell is the manual override
// when one exists, otherwise detection count > 0.
func (s *AttendanceService) Report(classID uint, sessionIDs []uint) (*AttendanceMatrix, error) {
	if _, err := s.classRepo.GetByID(classID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassNotFound
		}
		return nil, err
	}

	sessions, err := s.sessionRepo.ListByClassID(classID)
	if err != nil {
		return nil, err
	}
	if len(sessionIDs) > 0 {
		wanted := make(map[uint]bool, len(sessionIDs))
		for _, id := range sessionIDs {
			wanted[id] = true
		}
		filtered := sessions[:0:0]
		for _, session := range sessions {
			if wanted[session.ID] {
				filtered = append(filtered, session)
			}
		}
		sessions = filtered
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].HeldAt != sessions[j].HeldAt {
			return sessions[i].HeldAt < sessions[j].HeldAt
		}
		return sessions[i].ID < sessions[j].ID
	})

	students, err := s.studentRepo.ListByClassID(classID)
	if err != nil {
		return nil, err
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].Name != students[j].Name {
			return natsort.Compare(students[i].Name, students[j].Name)
		}
		return students[i].ID < students[j].ID
	})

	scopeIDs := make([]uint, len(sessions))
	for i, session := range sessions {
		scopeIDs[i] = session.ID
	}

	counts, err := database.ListDetectionCounts(s.querier, classID, scopeIDs)
	if err != nil {
		return nil, err
	}
	countIndex := make(map[[2]uint]int, len(counts))
	for _, dc := range counts {
		countIndex[[2]uint{dc.SessionID, dc.StudentID}] = dc.Count
	}

	overrides, err := s.attendanceRepo.ListByClass(classID, scopeIDs)
	if err != nil {
		return nil, err
	}
	overrideIndex := make(map[[2]uint]bool, len(overrides))
	for _, o := range overrides {
		overrideIndex[[2]uint{o.SessionID, o.StudentID}] = o.IsPresent
	}

	matrix := &AttendanceMatrix{ClassID: classID}
	for _, session := range sessions {
		matrix.Sessions = append(matrix.Sessions, SessionColumn{
			SessionID: session.ID,
			Name:      session.Name,
			HeldAt:    session.HeldAt,
		})
	}

	for _, student := range students {
		row := StudentAttendance{
			StudentID:     student.ID,
			StudentName:   student.Name,
			TotalSessions: len(sessions),
		}
		for _, session := range sessions {
			key := [2]uint{session.ID, student.ID}
			cell := AttendanceCell{
				SessionID:      session.ID,
				DetectionCount: countIndex[key],
			}
			if present, ok := overrideIndex[key]; ok {
				cell.Present = present
				cell.Overridden = true
			} else {
				cell.Present = cell.DetectionCount > 0
			}
			if cell.Present {
				row.AttendedSessions++
			}
			row.Cells = append(row.Cells, cell)
		}
		if row.TotalSessions > 0 {
			row.AttendanceRate = float64(row.AttendedSessions) / float64(row.TotalSessions) * 100
		}
		matrix.Rows = append(matrix.Rows, row)
	}

	return matrix, nil
}

// Mark records a manual presence value for a (session, student) pair,
// replacing any earlier mark. Re-marking the same value is a no-op at the
// data level.
func (s *AttendanceService) Mark(sessionID, studentID uint, isPresent bool) error {
	session, student, err := s.resolvePair(sessionID, studentID)
	if err != nil {
		return err
	}
	if session.ClassID != student.ClassID {
		return ErrCrossClassAssignment
	}

	return s.attendanceRepo.Upsert(&models.AttendanceOverride{
		SessionID: sessionID,
		StudentID: studentID,
		IsPresent: isPresent,
	})
}

// Unmark removes the manual override for a (session, student) pair, reverting
// it to automatic-derived presence. Unmarking a pair that has no override is
// a no-op.
func (s *AttendanceService) Unmark(sessionID, studentID uint) error {
	if _, _, err := s.resolvePair(sessionID, studentID); err != nil {
		return err
	}
	return s.attendanceRepo.Delete(sessionID, studentID)
}

func (s *AttendanceService) resolvePair(sessionID, studentID uint) (*models.Session, *models.Student, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}
	student, err := s.studentRepo.GetByID(studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrStudentNotFound
		}
		return nil, nil, err
	}
	return session, student, nil
}
