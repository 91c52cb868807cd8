package utils

import (
	"log"
	"os"

	"github.com/rwcarlsen/goexif/exif"
)

// PhotoMetadata holds the EXIF fields the attendance engine cares about
type PhotoMetadata struct {
	Width   *int   `json:"width,omitempty"`
	Height  *int   `json:"height,omitempty"`
	TakenAt *int64 `json:"taken_at,omitempty"`
}

// helper to safely get and convert an integer tag (like PixelXDimension)
func getInt(exifData *exif.Exif, tagName exif.FieldName) *int {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &val
}

// ExtractPhotoMetadata reads EXIF data from an image file. A photo without
// EXIF (or with a broken block) is not an error; the returned metadata just
// has nil fields.
func ExtractPhotoMetadata(filePath string) (PhotoMetadata, error) {
	var meta PhotoMetadata

	f, err := os.Open(filePath)
	if err != nil {
		return meta, err
	}
	defer f.Close()

	exifData, err := exif.Decode(f)
	if err != nil {
		log.Printf("metadata: no EXIF data for %s: %v", filePath, err)
		return meta, nil
	}

	meta.Width = getInt(exifData, exif.PixelXDimension)
	meta.Height = getInt(exifData, exif.PixelYDimension)

	dt, err := exifData.DateTime()
	if err == nil {
		ts := dt.Unix()
		meta.TakenAt = &ts
	} else {
		log.Printf("metadata: could not read DateTimeOriginal for %s: %v", filePath, err)
	}

	return meta, nil
}
