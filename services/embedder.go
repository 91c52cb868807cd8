package services

import (
	"image"

	"github.com/classroll/attendancebackend/config"
	"github.com/classroll/attendancebackend/media"
)

// Embedder produces a fixed-length identity vector from a cropped face image.
// media.FaceRecognitionModel is the production implementation; tests supply
// deterministic stand-ins.
type Embedder interface {
	Model() string
	Dim() int
	Embed(img image.Image) ([]float32, error)
}

// CropSource loads the pixel region of a face crop and fingerprints it.
type CropSource interface {
	LoadRegion(relPath string, x, y, w, h int) (image.Image, string, error)
}

// ModelRegistry is the closed set of supported embedding models, keyed by
// model name. Only a handful of fixed-dimensionality models exist, so this is
// map dispatch rather than any plugin mechanism.
type ModelRegistry map[string]Embedder

// NewModelRegistry loads the DNN-backed embedders from the configured weights
func NewModelRegistry(cfg config.Config) ModelRegistry {
	registry := ModelRegistry{}
	if m := media.NewFaceRecognitionModel(cfg.ArcFaceModelPath, "arcface"); m.Enabled {
		registry["arcface"] = m
	}
	if m := media.NewFaceRecognitionModel(cfg.FaceNetModelPath, "facenet"); m.Enabled {
		registry["facenet"] = m
	}
	return registry
}

// Get returns the embedder for a model name, or ErrModelUnavailable
func (mr ModelRegistry) Get(model string) (Embedder, error) {
	embedder, ok := mr[model]
	if !ok {
		return nil, ErrModelUnavailable
	}
	return embedder, nil
}

// Close releases all loaded models
func (mr ModelRegistry) Close() {
	for _, embedder := range mr {
		if m, ok := embedder.(*media.FaceRecognitionModel); ok {
			m.Close()
		}
	}
}
