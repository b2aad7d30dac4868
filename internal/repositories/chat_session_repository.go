package repositories

import (
	"errors"

	"csvchat/internal/models"

	"gorm.io/gorm"
)

type ChatSessionRepository interface {
	List() ([]models.ChatSession, error)
	GetByID(id uint) (*models.ChatSession, error)
	Create(session *models.ChatSession) error
	UpdateByID(id uint, updates map[string]interface{}) error
	DeleteByID(id uint) error
	DeleteAll() error
}

type chatSessionRepository struct {
	db *gorm.DB
}

func NewChatSessionRepository(db *gorm.DB) ChatSessionRepository {
	return &chatSessionRepository{db: db}
}

func (r *chatSessionRepository) List() ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	if err := r.db.Order("updated_at desc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *chatSessionRepository) GetByID(id uint) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := r.db.Take(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *chatSessionRepository) Create(session *models.ChatSession) error {
	return r.db.Create(session).Error
}

func (r *chatSessionRepository) UpdateByID(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.ChatSession{}).Where("id = ?", id).Updates(updates).Error
}

func (r *chatSessionRepository) DeleteByID(id uint) error {
	return r.db.Delete(&models.ChatSession{}, id).Error
}

func (r *chatSessionRepository) DeleteAll() error {
	return r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.ChatSession{}).Error
}
