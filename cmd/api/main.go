package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/live-text-go/internal/capture"
	"github.com/anime-shed/live-text-go/internal/config"
	"github.com/anime-shed/live-text-go/internal/container"
	"github.com/anime-shed/live-text-go/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize dependency injection container
	c, err := container.NewContainer(cfg)
	if err != nil {
		if errors.Is(err, capture.ErrNoCamera) {
			logger.WithError(err).WithField("device", cfg.CameraDevice).
				Fatal("No camera available; set FRAME_SOURCE=snapshot or FRAME_SOURCE=none to run without one")
		}
		logger.WithError(err).Fatal("Failed to initialize container")
	}

	ctx, stopScanning := context.WithCancel(context.Background())
	c.Start(ctx)

	// Write timeout is left open so websocket viewers are not cut off
	server := &http.Server{
		Addr:        cfg.ServerAddress(),
		Handler:     c.Handler(),
		ReadTimeout: cfg.RequestTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"address":      cfg.ServerAddress(),
			"timeout":      cfg.RequestTimeout,
			"frame_source": cfg.FrameSource,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal or a failed scanner
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-c.ScanErrors():
		logger.WithError(err).Error("Live scanning failed, shutting down")
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	stopScanning()
	if err := c.Close(); err != nil {
		logger.WithError(err).Error("Failed to release resources")
	}

	logger.Info("Server exited")
}
