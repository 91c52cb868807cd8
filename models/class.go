package models

// Class represents a classroom using GORM. A class defines the closed set of
// students that face crops in its sessions may be assigned to.
// It corresponds to the 'classes' table.
type Class struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"not null" json:"name"`
	CreatedAt int64  `gorm:"not null" json:"created_at"` // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt int64  `gorm:"not null" json:"updated_at"` // Stored as INTEGER in SQLite, Unix timestamp

	// Relationships
	// omitempty will hide these if they are not preloaded or are empty
	Students []Student `gorm:"foreignKey:ClassID;constraint:OnDelete:CASCADE" json:"students,omitempty"`
	Sessions []Session `gorm:"foreignKey:ClassID;constraint:OnDelete:CASCADE" json:"sessions,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Class) TableName() string {
	return "classes"
}
