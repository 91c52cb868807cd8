package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultPhotosSubDir = "session_photos"
)

const (
	defaultEmbeddingQueueSize  = 200
	defaultNumEmbeddingWorkers = 4

	defaultKNeighbors          = 5
	defaultAssignThreshold     = 0.6
	defaultClusterThreshold    = 0.7
	defaultMaxClusters         = 50
	defaultGenerationTimeoutMs = 30000
)

// DefaultEmbeddingModel is used when an operation does not name a model.
const DefaultEmbeddingModel = "arcface"

type Config struct {
	// database path
	DatabasePath string

	// storage root for session photographs
	PhotoStoragePath string
	PhotosPath       string // full-calculated path for session photos

	// embedding model weights (DNN)
	ArcFaceModelPath string
	FaceNetModelPath string

	// worker settings
	EmbeddingQueueSize  int
	NumEmbeddingWorkers int

	// engine parameter defaults
	DefaultK                int
	DefaultAssignThreshold  float32
	DefaultClusterThreshold float32
	DefaultMaxClusters      int
	DefaultUseVoting        bool
	DefaultForceClustering  bool
	GenerationTimeoutMs     int
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float32) float32 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 32)
	if err != nil || val <= 0 || val > 1 {
		log.Printf("Warning: Invalid %s '%s'. Using default %f. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return float32(val)
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %v. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "attendance.db")

	photoStorage := getEnvOrDefault("PHOTO_STORAGE_PATH", filepath.Join(".", "photo_storage"))
	absPhotoStorage, err := filepath.Abs(photoStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for photo storage '%s': %w", photoStorage, err)
	}

	photosSubDir := getEnvOrDefault("PHOTOS_SUBDIR", DefaultPhotosSubDir)
	absPhotosPath := filepath.Join(absPhotoStorage, photosSubDir)

	arcfacePath := getEnvOrDefault("ARCFACE_MODEL_PATH", "./models_dnn/arcface_r50.onnx")
	facenetPath := getEnvOrDefault("FACENET_MODEL_PATH", "./models_dnn/facenet_512.onnx")

	cfg := Config{
		DatabasePath:     dbPath,
		PhotoStoragePath: absPhotoStorage,
		PhotosPath:       absPhotosPath,
		ArcFaceModelPath: arcfacePath,
		FaceNetModelPath: facenetPath,

		EmbeddingQueueSize:  getEnvIntOrDefault("EMBEDDING_QUEUE_SIZE", defaultEmbeddingQueueSize),
		NumEmbeddingWorkers: getEnvIntOrDefault("NUM_EMBEDDING_WORKERS", defaultNumEmbeddingWorkers),

		DefaultK:                getEnvIntOrDefault("DEFAULT_K_NEIGHBORS", defaultKNeighbors),
		DefaultAssignThreshold:  getEnvFloatOrDefault("DEFAULT_ASSIGN_THRESHOLD", defaultAssignThreshold),
		DefaultClusterThreshold: getEnvFloatOrDefault("DEFAULT_CLUSTER_THRESHOLD", defaultClusterThreshold),
		DefaultMaxClusters:      getEnvIntOrDefault("DEFAULT_MAX_CLUSTERS", defaultMaxClusters),
		DefaultUseVoting:        getEnvBoolOrDefault("DEFAULT_USE_VOTING", false),
		DefaultForceClustering:  getEnvBoolOrDefault("DEFAULT_FORCE_CLUSTERING", false),
		GenerationTimeoutMs:     getEnvIntOrDefault("GENERATION_TIMEOUT_MS", defaultGenerationTimeoutMs),
	}

	return cfg, nil
}
