package services

import (
	"context"
	"errors"
	"time"

	"csvchat/internal/models"
	"csvchat/internal/repositories"
)

type AppSettingsService interface {
	Get(ctx context.Context) (*models.AppSettings, error)
	Update(ctx context.Context, theme, locale string) (*models.AppSettings, error)
	SetDefaultModel(ctx context.Context, modelKey string) (*models.AppSettings, error)
	Startup(ctx context.Context)
}

type appSettingsService struct {
	appSettings repositories.AppSettingsRepository
	context     context.Context
}

func (s *appSettingsService) Startup(ctx context.Context) {
	s.context = ctx
}

func NewAppSettingsService(appSettings repositories.AppSettingsRepository) AppSettingsService {
	return &appSettingsService{appSettings: appSettings}
}

func (s *appSettingsService) Get(ctx context.Context) (*models.AppSettings, error) {
	return s.appSettings.Get(ctx)
}

func (s *appSettingsService) Update(ctx context.Context, theme, locale string) (*models.AppSettings, error) {
	if theme == "" {
		return nil, errors.New("theme is required")
	}
	if locale == "" {
		return nil, errors.New("locale is required")
	}

	// Validate theme values
	if theme != "light" && theme != "dark" && theme != "system" {
		return nil, errors.New("theme must be 'light', 'dark', or 'system'")
	}

	current, err := s.appSettings.Get(ctx)
	if err != nil {
		return nil, err
	}

	current.Theme = theme
	current.Locale = locale
	current.UpdatedAt = time.Now()

	if err := s.appSettings.Update(ctx, current); err != nil {
		return nil, err
	}

	return current, nil
}

// SetDefaultModel stores the model preselected when a new conversation opens.
// An empty key clears the preference.
func (s *appSettingsService) SetDefaultModel(ctx context.Context, modelKey string) (*models.AppSettings, error) {
	current, err := s.appSettings.Get(ctx)
	if err != nil {
		return nil, err
	}

	current.DefaultModelKey = modelKey
	current.UpdatedAt = time.Now()

	if err := s.appSettings.Update(ctx, current); err != nil {
		return nil, err
	}

	return current, nil
}
