package models

// Student represents a student identity belonging to exactly one class, using
// GORM. Students are created at enrollment or materialized by the cluster
// bootstrapper as placeholders; a merge absorbs one student into another.
// It corresponds to the 'students' table.
type Student struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ClassID   uint   `gorm:"not null;index" json:"class_id"`
	Name      string `gorm:"not null" json:"name"`
	CreatedAt int64  `gorm:"not null" json:"created_at"` // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt int64  `gorm:"not null" json:"updated_at"` // Stored as INTEGER in SQLite, Unix timestamp

	Class *Class `gorm:"foreignKey:ClassID" json:"class,omitempty"` // Belongs to Class

	// Crops keep their rows when the student is removed; the identification
	// fields are cleared by the repository so the crop reverts to unidentified
	Crops []FaceCrop `gorm:"foreignKey:StudentID;constraint:OnDelete:SET NULL" json:"crops,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Student) TableName() string {
	return "students"
}
