package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/segment-mcp/internal/config"
	"github.com/ironsheep/segment-mcp/internal/logger"
	"github.com/ironsheep/segment-mcp/internal/service"
	"github.com/ironsheep/segment-mcp/internal/transport"
)

// Version is set by ldflags during build.
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)
	transport.Version = Version

	mgr, err := service.NewManager(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize session manager")
	}

	// A run may hold its request for up to RunTimeout.
	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           transport.NewHandler(mgr, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RunTimeout + 10*time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"address":     cfg.ServerAddress(),
			"run_timeout": cfg.RunTimeout,
			"learned":     mgr.HasModel(),
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.WithField("sessions", mgr.CloseAll()).Info("Server exited")
}
