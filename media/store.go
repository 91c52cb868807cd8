package media

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/classroll/attendancebackend/utils"
)

var supportedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// PhotoStore saves and serves session photographs on the local filesystem.
// Files get uuid names so uploads can never collide or traverse paths.
type PhotoStore struct {
	photosPath string // absolute path for session photos
}

// NewPhotoStore creates a photo store rooted at the given directory
func NewPhotoStore(photosPath string) (*PhotoStore, error) {
	absPath, err := filepath.Abs(photosPath)
	if err != nil {
		return nil, fmt.Errorf("invalid photo storage path '%s': %w", photosPath, err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photo storage directory '%s': %w", absPath, err)
	}

	log.Printf("media.store: initialized photo store at %s", absPath)
	return &PhotoStore{photosPath: absPath}, nil
}

// Save stores a session photo under a generated uuid filename and returns the
// relative path plus the EXIF capture time when the photo carries one
func (ps *PhotoStore) Save(filenameHint string, data io.Reader) (string, *int64, error) {
	if !IsRasterImage(filenameHint) {
		return "", nil, fmt.Errorf("unsupported image type: %s", filenameHint)
	}

	photoUUID, err := uuid.NewRandom()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate UUID for photo: %w", err)
	}
	filename := photoUUID.String() + strings.ToLower(filepath.Ext(filenameHint))
	fullPath := filepath.Join(ps.photosPath, filename)

	out, err := os.Create(fullPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create photo file %s: %w", fullPath, err)
	}
	if _, err := io.Copy(out, data); err != nil {
		out.Close()
		os.Remove(fullPath)
		return "", nil, fmt.Errorf("failed to write photo file %s: %w", fullPath, err)
	}
	if err := out.Close(); err != nil {
		return "", nil, fmt.Errorf("failed to close photo file %s: %w", fullPath, err)
	}

	meta, err := utils.ExtractPhotoMetadata(fullPath)
	if err != nil {
		log.Printf("media.store: failed to read metadata for %s: %v", filename, err)
	}

	return filename, meta.TakenAt, nil
}

// FullPath returns the absolute filesystem path for a stored photo
func (ps *PhotoStore) FullPath(relativePath string) (string, error) {
	fullPath := filepath.Join(ps.photosPath, filepath.FromSlash(relativePath))
	if !strings.HasPrefix(filepath.Clean(fullPath), ps.photosPath) {
		return "", fmt.Errorf("photo path '%s' resolves outside storage", relativePath)
	}
	return fullPath, nil
}

// Delete removes a stored photo
func (ps *PhotoStore) Delete(relativePath string) error {
	fullPath, err := ps.FullPath(relativePath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete photo %s: %w", relativePath, err)
	}
	return nil
}
