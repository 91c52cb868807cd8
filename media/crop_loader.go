package media

import (
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/crypto/blake2b"
)

// ErrRegionOutOfBounds is returned when a crop rectangle does not fit inside
// its source image. The stored coordinates are treated as authoritative, so a
// region that fails this re-validation means the crop no longer matches the
// photo on disk.
var ErrRegionOutOfBounds = errors.New("crop region out of image bounds")

// CropLoader reads session photographs from local storage and cuts out face
// crop regions for embedding generation.
type CropLoader struct {
	photosPath string // absolute root for session photos
}

// NewCropLoader creates a loader rooted at the configured photos directory
func NewCropLoader(photosPath string) *CropLoader {
	return &CropLoader{photosPath: photosPath}
}

// resolve joins a stored relative path with the photos root, refusing paths
// that escape it
func (cl *CropLoader) resolve(relPath string) (string, error) {
	fullPath := filepath.Join(cl.photosPath, filepath.FromSlash(relPath))
	if !strings.HasPrefix(filepath.Clean(fullPath), cl.photosPath) {
		return "", fmt.Errorf("image path '%s' resolves outside photo storage", relPath)
	}
	return fullPath, nil
}

// LoadRegion opens the session photo at relPath, honoring EXIF orientation,
// and returns the crop region together with a blake2b fingerprint of its
// pixels. The fingerprint lets callers detect whether a stored embedding was
// computed from the same pixels.
func (cl *CropLoader) LoadRegion(relPath string, x, y, w, h int) (image.Image, string, error) {
	fullPath, err := cl.resolve(relPath)
	if err != nil {
		return nil, "", err
	}

	img, err := imaging.Open(fullPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image %s: %w", relPath, err)
	}

	bounds := img.Bounds()
	if w <= 0 || h <= 0 || x < 0 || y < 0 ||
		x+w > bounds.Dx() || y+h > bounds.Dy() {
		return nil, "", fmt.Errorf("region %dx%d+%d+%d in %dx%d image: %w",
			w, h, x, y, bounds.Dx(), bounds.Dy(), ErrRegionOutOfBounds)
	}

	crop := imaging.Crop(img, image.Rect(x, y, x+w, y+h))
	sum := blake2b.Sum256(crop.Pix)

	return crop, hex.EncodeToString(sum[:]), nil
}
