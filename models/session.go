package models

// Session represents a single class meeting whose photographs are scanned for
// attendance, using GORM. It corresponds to the 'sessions' table.
type Session struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ClassID   uint   `gorm:"not null;index" json:"class_id"`
	Name      string `gorm:"not null" json:"name"`
	HeldAt    int64  `gorm:"not null" json:"held_at"`    // Stored as INTEGER in SQLite, Unix timestamp
	CreatedAt int64  `gorm:"not null" json:"created_at"` // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt int64  `gorm:"not null" json:"updated_at"` // Stored as INTEGER in SQLite, Unix timestamp

	Class  *Class         `gorm:"foreignKey:ClassID" json:"class,omitempty"` // Belongs to Class
	Images []SessionImage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Session) TableName() string {
	return "sessions"
}
