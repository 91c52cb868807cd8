package models

// Identification source values for FaceCrop.IdentificationSource.
const (
	IdentificationNone      = "none"
	IdentificationAutomatic = "automatic"
	IdentificationManual    = "manual"
)

// FaceCrop represents a detected face region within a session image, using
// GORM. Detection itself happens upstream; this engine only decides whose face
// the crop belongs to. StudentID is non-nil exactly when IdentificationSource
// is not "none". It corresponds to the 'face_crops' table.
type FaceCrop struct {
	ID      uint `gorm:"primaryKey;autoIncrement" json:"id"`
	ImageID uint `gorm:"not null;index" json:"image_id"`
	X       int  `gorm:"not null" json:"x"`
	Y       int  `gorm:"not null" json:"y"`
	Width   int  `gorm:"not null" json:"width"`
	Height  int  `gorm:"not null" json:"height"`

	StudentID            *uint    `gorm:"index" json:"student_id,omitempty"`
	Confidence           *float32 `json:"confidence,omitempty"`
	IdentificationSource string   `gorm:"not null;default:'none'" json:"identification_source"`
	EmbeddingModel       *string  `gorm:"column:embedding_model" json:"embedding_model,omitempty"`

	CreatedAt int64 `gorm:"not null" json:"created_at"` // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt int64 `gorm:"not null" json:"updated_at"` // Stored as INTEGER in SQLite, Unix timestamp

	Image   *SessionImage `gorm:"foreignKey:ImageID" json:"image,omitempty"`     // Belongs to SessionImage
	Student *Student      `gorm:"foreignKey:StudentID" json:"student,omitempty"` // Belongs to Student

	Embeddings []FaceEmbedding `gorm:"foreignKey:CropID;constraint:OnDelete:CASCADE" json:"embeddings,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (FaceCrop) TableName() string {
	return "face_crops"
}

// IsIdentified reports whether the crop has been assigned to a student.
func (fc *FaceCrop) IsIdentified() bool {
	return fc.StudentID != nil && fc.IdentificationSource != IdentificationNone
}
