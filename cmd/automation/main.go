package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"relaywatch/internal/app"
	"relaywatch/internal/config"
	"relaywatch/internal/logger"
)

func main() {
	cfg := config.Load()
	lg := logger.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewAutomationApp(ctx, cfg, lg)
	if err != nil {
		log.Fatalf("Failed to initialize automation: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Automation stopped: %v", err)
	}
}
