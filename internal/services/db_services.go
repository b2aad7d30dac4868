package services

import (
	"context"

	"csvchat/internal/repositories"

	"gorm.io/gorm"
)

// DbServices aggregates all domain services backed by the database.
// Fields use plural names (e.g., ChatSessions) to align with Go conventions
// seen in service/store containers.
type DbServices struct {
	ChatSessions  ChatSessionService
	AppSettings   AppSettingsService
	ModelSettings repositories.ModelSettingRepository
}

// NewDbServices constructs the service container using repositories backed by db.
func NewDbServices(db *gorm.DB) *DbServices {
	chatSessionRepo := repositories.NewChatSessionRepository(db)
	appSettingsRepo := repositories.NewAppSettingsRepository(db)
	modelSettingRepo := repositories.NewModelSettingRepository(db)

	return &DbServices{
		ChatSessions:  NewChatSessionService(chatSessionRepo),
		AppSettings:   NewAppSettingsService(appSettingsRepo),
		ModelSettings: modelSettingRepo,
	}
}

// StartDbServices propagates the runtime context to every DB-backed service.
func (s *DbServices) StartDbServices(ctx context.Context) {
	s.ChatSessions.Startup(ctx)
	s.AppSettings.Startup(ctx)
}
