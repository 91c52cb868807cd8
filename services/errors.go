package services

import "errors"

// Precondition and validation errors raised by the identity resolution
// engine. Policy rejections (a candidate below the similarity threshold) are
// not errors; they are reported through AssignmentResult outcomes.
var (
	// ErrClassNotFound indicates the referenced class does not exist
	ErrClassNotFound = errors.New("class not found")

	// ErrCropNotFound indicates the referenced face crop does not exist
	ErrCropNotFound = errors.New("face crop not found")

	// ErrStudentNotFound indicates the referenced student does not exist
	ErrStudentNotFound = errors.New("student not found")

	// ErrSessionNotFound indicates the referenced session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrModelUnavailable indicates the requested embedding model is not in
	// the supported set
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrImageUnreadable indicates the crop's source photo is missing or corrupt
	ErrImageUnreadable = errors.New("source image unreadable")

	// ErrNoFaceInCrop indicates the stored crop region failed re-validation
	// against the source photo
	ErrNoFaceInCrop = errors.New("no usable face region in crop")

	// ErrGenerationTimeout indicates embedding generation exceeded its
	// per-call deadline; the caller may retry
	ErrGenerationTimeout = errors.New("embedding generation timed out")

	// ErrMissingEmbedding indicates the crop has no embedding under the
	// requested model; generation is a separate, explicit step
	ErrMissingEmbedding = errors.New("crop has no embedding for model")

	// ErrNoLabeledReferences indicates the crop's class has no labeled
	// embeddings under the requested model to match against
	ErrNoLabeledReferences = errors.New("no labeled reference embeddings in class")

	// ErrInsufficientData indicates clustering found zero eligible crops
	ErrInsufficientData = errors.New("no unassigned embedded crops in scope")

	// ErrInvalidMaxClusters indicates a non-positive cluster cap
	ErrInvalidMaxClusters = errors.New("max clusters must be positive")

	// ErrSelfMerge indicates source and target of a merge are the same student
	ErrSelfMerge = errors.New("cannot merge a student into itself")

	// ErrCrossClassMerge indicates the merge endpoints belong to different classes
	ErrCrossClassMerge = errors.New("students belong to different classes")

	// ErrCrossClassAssignment indicates an attempted assignment of a student
	// from a different class than the crop's session
	ErrCrossClassAssignment = errors.New("student and crop belong to different classes")
)
