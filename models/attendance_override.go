package models

// AttendanceOverride represents a manual presence mark for a (session, student)
// pair, using GORM. It takes precedence over the automatically derived presence
// but never replaces the underlying detection counts; deleting the row reverts
// the pair to automatic. It corresponds to the 'attendance_overrides' table.
type AttendanceOverride struct {
	ID        uint  `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID uint  `gorm:"not null;uniqueIndex:idx_session_student" json:"session_id"`
	StudentID uint  `gorm:"not null;uniqueIndex:idx_session_student" json:"student_id"`
	IsPresent bool  `gorm:"not null" json:"is_present"`
	CreatedAt int64 `gorm:"not null" json:"created_at"` // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt int64 `gorm:"not null" json:"updated_at"` // Stored as INTEGER in SQLite, Unix timestamp

	Session *Session `gorm:"foreignKey:SessionID" json:"session,omitempty"` // Belongs to Session
	Student *Student `gorm:"foreignKey:StudentID" json:"student,omitempty"` // Belongs to Student
}

// TableName explicitly sets the table name for GORM.
func (AttendanceOverride) TableName() string {
	return "attendance_overrides"
}
