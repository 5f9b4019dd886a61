package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaydeck/relaydeck/pkg/config"
	"github.com/relaydeck/relaydeck/pkg/db"
	"github.com/relaydeck/relaydeck/pkg/provider"
	"github.com/relaydeck/relaydeck/pkg/service"
	"github.com/relaydeck/relaydeck/pkg/utils"
)

func main() {
	// Initialize logging system
	utils.InitLogger()
	logger := utils.GetLogger()

	cfg, configFile, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if configFile != "" {
		logger.Info("config loaded", "file", configFile)
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		logger.Error("Failed to resolve database path", "error", err)
		os.Exit(1)
	}
	gdb, err := db.Open(dbPath)
	if err != nil {
		logger.Error("Failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}

	generator := provider.NewHTTPGenerator(cfg.BackendBaseURL(), cfg.BackendAPIKey(), cfg.BackendModel())
	chatService := service.NewChatService(gdb, generator, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(cfg, chatService)
	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	// In-flight runs keep persisting after clients drop; give them a window
	// to finish before exit.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := chatService.Shutdown(shutdownCtx); err != nil {
		logger.Warn("persistence tasks did not drain", "error", err)
	}
}
