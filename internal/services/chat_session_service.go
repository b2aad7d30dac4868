package services

import (
	"context"
	"fmt"
	"strings"

	"csvchat/internal/models"
	"csvchat/internal/repositories"
)

type ChatSessionService interface {
	Startup(ctx context.Context)
	List() ([]models.ChatSession, error)
	GetByID(id uint) (*models.ChatSession, error)
	Create(session *models.ChatSession) (*models.ChatSession, error)
	UpdateByID(id uint, updates map[string]interface{}) error
	DeleteByID(id uint) error
	DeleteAll() error
}

type chatSessionService struct {
	repo repositories.ChatSessionRepository
	ctx  context.Context
}

func NewChatSessionService(repo repositories.ChatSessionRepository) ChatSessionService {
	return &chatSessionService{repo: repo}
}

func (s *chatSessionService) Startup(ctx context.Context) {
	s.ctx = ctx
}

func (s *chatSessionService) List() ([]models.ChatSession, error) {
	return s.repo.List()
}

func (s *chatSessionService) GetByID(id uint) (*models.ChatSession, error) {
	if id == 0 {
		return nil, fmt.Errorf("session ID is required")
	}
	return s.repo.GetByID(id)
}

func (s *chatSessionService) Create(session *models.ChatSession) (*models.ChatSession, error) {
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}
	session.Title = strings.TrimSpace(session.Title)
	session.Provider = strings.TrimSpace(session.Provider)
	session.ModelKey = strings.TrimSpace(session.ModelKey)
	if session.Title == "" {
		session.Title = "New conversation"
	}

	if err := s.repo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *chatSessionService) UpdateByID(id uint, updates map[string]interface{}) error {
	if id == 0 {
		return fmt.Errorf("session ID is required")
	}
	return s.repo.UpdateByID(id, updates)
}

func (s *chatSessionService) DeleteByID(id uint) error {
	if id == 0 {
		return fmt.Errorf("session ID is required")
	}
	return s.repo.DeleteByID(id)
}

func (s *chatSessionService) DeleteAll() error {
	return s.repo.DeleteAll()
}
