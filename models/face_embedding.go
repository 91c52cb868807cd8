package models

import (
	"math"
)

// FaceEmbedding represents a fixed-length face embedding vector for one crop
// under one model. At most one row exists per (crop, model) pair; regeneration
// overwrites in place. It corresponds to the 'face_embeddings' table.
type FaceEmbedding struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	CropID        uint   `gorm:"not null;uniqueIndex:idx_crop_model" json:"crop_id"`
	Model         string `gorm:"not null;uniqueIndex:idx_crop_model" json:"model"`
	EmbeddingData []byte `gorm:"not null;column:embedding_data" json:"-"` // float32 vector as BLOB, little-endian
	Dim           int    `gorm:"not null" json:"dim"`
	SourceHash    string `gorm:"column:source_hash" json:"source_hash,omitempty"` // blake2b of the crop region bytes
	CreatedAt     int64  `gorm:"not null" json:"created_at"`                      // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt     int64  `gorm:"not null" json:"updated_at"`                      // Stored as INTEGER in SQLite, Unix timestamp

	Crop *FaceCrop `gorm:"foreignKey:CropID" json:"crop,omitempty"` // Belongs to FaceCrop
}

// TableName explicitly sets the table name for GORM.
func (FaceEmbedding) TableName() string {
	return "face_embeddings"
}

// GetEmbedding converts the BLOB data to []float32
func (fe *FaceEmbedding) GetEmbedding() []float32 {
	if len(fe.EmbeddingData) == 0 {
		return nil
	}

	// Convert []byte to []float32
	embedding := make([]float32, len(fe.EmbeddingData)/4) // 4 bytes per float32
	for i := 0; i < len(embedding); i++ {
		offset := i * 4
		bits := uint32(fe.EmbeddingData[offset]) |
			uint32(fe.EmbeddingData[offset+1])<<8 |
			uint32(fe.EmbeddingData[offset+2])<<16 |
			uint32(fe.EmbeddingData[offset+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

// SetEmbedding converts []float32 to BLOB data and records the dimensionality
func (fe *FaceEmbedding) SetEmbedding(embedding []float32) {
	fe.Dim = len(embedding)
	if len(embedding) == 0 {
		fe.EmbeddingData = nil
		return
	}

	// Convert []float32 to []byte
	fe.EmbeddingData = make([]byte, len(embedding)*4) // 4 bytes per float32
	for i, val := range embedding {
		offset := i * 4
		bits := math.Float32bits(val)
		fe.EmbeddingData[offset] = byte(bits)
		fe.EmbeddingData[offset+1] = byte(bits >> 8)
		fe.EmbeddingData[offset+2] = byte(bits >> 16)
		fe.EmbeddingData[offset+3] = byte(bits >> 24)
	}
}
