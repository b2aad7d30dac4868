package main

import (
	"context"
	"embed"
	"fmt"

	"csvchat/internal/database"
	"csvchat/internal/events"
	"csvchat/internal/services"
	"csvchat/internal/utils"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"gorm.io/gorm/logger"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	utils.LoadEnv()

	app := NewApp()

	db, err := database.Init(database.Config{
		LogLevel: logger.Info,
	})
	if err != nil {
		fmt.Println("Error opening database:", err)
		return
	}

	if sqlDB, err := db.DB(); err == nil {
		app.dbClose = sqlDB.Close
	}

	events.EnableRuntimeEmitter()
	events.EnableRuntimeDeltaEmitter()

	keyringService := services.NewKeyringService()
	dbService := services.NewDbServices(db)
	modelConfigService := services.NewModelConfigService(dbService.ModelSettings)
	contextFileService := services.NewContextFileService()
	artifactService := services.NewArtifactService(nil)
	chatService := services.NewChatService(keyringService, dbService.ChatSessions, modelConfigService, contextFileService, artifactService)
	eventEmitterService := services.NewEventEmitterService()

	app.AppSettings = dbService.AppSettings
	app.contextFiles = contextFileService

	err = wails.Run(&options.App{
		Title:  "CSV Chat",
		Width:  1024,
		Height: 768,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		Linux: &linux.Options{
			WindowIsTranslucent: false,
			WebviewGpuPolicy:    linux.WebviewGpuPolicyAlways,
			ProgramName:         "CSV Chat",
		},
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		OnStartup: func(ctx context.Context) {
			app.startup(ctx)
			dbService.StartDbServices(ctx)
			keyringService.Startup()
			eventEmitterService.Startup(ctx)

			if err := modelConfigService.Startup(ctx); err != nil {
				fmt.Println("Error starting model configuration service:", err)
			}
			if err := contextFileService.Startup(ctx); err != nil {
				fmt.Println("Error loading context files:", err)
			}
			if err := artifactService.Startup(ctx); err != nil {
				fmt.Println("Error preparing artifact storage:", err)
			}
			if err := chatService.Startup(ctx); err != nil {
				fmt.Println("Error starting chat service:", err)
			}
		},
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
			dbService.ChatSessions,
			modelConfigService,
			contextFileService,
			artifactService,
			chatService,
			eventEmitterService,
			keyringService,
		},
	})

	if err != nil {
		println("Error:", err.Error())
	}
}
