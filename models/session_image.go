package models

// SessionImage represents a photograph taken during a session, using GORM.
// Face crops reference a region within one of these images.
// It corresponds to the 'session_images' table.
type SessionImage struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  uint   `gorm:"not null;index" json:"session_id"`
	Path       string `gorm:"not null;index" json:"path"`
	CapturedAt *int64 `json:"captured_at,omitempty"` // From EXIF when available, Unix timestamp
	CreatedAt  int64  `gorm:"not null" json:"created_at"`
	UpdatedAt  int64  `gorm:"not null" json:"updated_at"`

	Session *Session   `gorm:"foreignKey:SessionID" json:"session,omitempty"` // Belongs to Session
	Crops   []FaceCrop `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE" json:"crops,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (SessionImage) TableName() string {
	return "session_images"
}
