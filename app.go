package main

import (
	"context"
	"fmt"

	"csvchat/internal/models"
	"csvchat/internal/services"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// App struct
type App struct {
	ctx          context.Context
	AppSettings  services.AppSettingsService
	contextFiles *services.ContextFileService
	dbClose      func() error
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{}
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

// shutdown is called when the app is closing. Clean up resources here.
func (a *App) shutdown(ctx context.Context) {
	if a.dbClose != nil {
		if err := a.dbClose(); err != nil {
			runtime.LogError(ctx, fmt.Sprintf("failed to close database: %v", err))
		} else {
			runtime.LogInfo(ctx, "database closed")
		}
		a.dbClose = nil
	}
}

func (a *App) GetAppSettings() (*models.AppSettings, error) {
	return a.AppSettings.Get(a.ctx)
}

func (a *App) UpdateAppSettings(theme, locale string) (*models.AppSettings, error) {
	return a.AppSettings.Update(a.ctx, theme, locale)
}

func (a *App) SetDefaultModel(modelKey string) (*models.AppSettings, error) {
	return a.AppSettings.SetDefaultModel(a.ctx, modelKey)
}

// SelectDataDirectory opens a native directory picker and points the context
// file loader at the chosen directory.
func (a *App) SelectDataDirectory() (string, error) {
	dir, err := runtime.OpenDirectoryDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Select Data Directory",
	})
	if err != nil {
		return "", err
	}
	if dir == "" {
		return "", nil
	}
	if err := a.contextFiles.SetDataDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}
