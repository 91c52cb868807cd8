package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/classroll/attendancebackend/models"
	"gorm.io/gorm"
)

// SessionRepository handles database operations for Session and SessionImage entities
type SessionRepository struct {
	DB *gorm.DB
}

// NewSessionRepository creates a new instance of SessionRepository
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

// Create creates a new session record in the database
func (r *SessionRepository) Create(session *models.Session) error {
	now := time.Now().Unix()
	if session.CreatedAt == 0 {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.HeldAt == 0 {
		session.HeldAt = now
	}

	err := r.DB.Create(session).Error
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.Name, err)
	}
	return nil
}

// GetByID retrieves a session by its ID
func (r *SessionRepository) GetByID(id uint) (*models.Session, error) {
	var session models.Session
	err := r.DB.First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session by ID %d: %w", id, err)
	}
	return &session, nil
}

// ListByClassID retrieves all sessions of a class, oldest first
func (r *SessionRepository) ListByClassID(classID uint) ([]models.Session, error) {
	var sessions []models.Session
	err := r.DB.Where("class_id = ?", classID).Order("held_at ASC").Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for class ID %d: %w", classID, err)
	}
	return sessions, nil
}

// Delete removes a session by its ID
func (r *SessionRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.Session{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete session ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddImage creates a new session image record
func (r *SessionRepository) AddImage(image *models.SessionImage) error {
	now := time.Now().Unix()
	if image.CreatedAt == 0 {
		image.CreatedAt = now
	}
	image.UpdatedAt = now

	err := r.DB.Create(image).Error
	if err != nil {
		return fmt.Errorf("failed to create session image %s: %w", image.Path, err)
	}
	return nil
}

// GetImageByID retrieves a session image by its ID, preloading the session
func (r *SessionRepository) GetImageByID(id uint) (*models.SessionImage, error) {
	var image models.SessionImage
	err := r.DB.Preload("Session").First(&image, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session image by ID %d: %w", id, err)
	}
	return &image, nil
}

// ListImagesBySessionID retrieves all images of a session
func (r *SessionRepository) ListImagesBySessionID(sessionID uint) ([]models.SessionImage, error) {
	var images []models.SessionImage
	err := r.DB.Where("session_id = ?", sessionID).Order("id ASC").Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images for session ID %d: %w", sessionID, err)
	}
	return images, nil
}
