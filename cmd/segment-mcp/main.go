package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/segment-mcp/internal/config"
	"github.com/ironsheep/segment-mcp/internal/logger"
	"github.com/ironsheep/segment-mcp/internal/server"
	"github.com/ironsheep/segment-mcp/internal/service"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("segment-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("segment-mcp - MCP server for level-set image segmentation")
			fmt.Println()
			fmt.Println("Usage: segment-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  LOG_LEVEL=debug               Enable debug logging")
			fmt.Println("  SEGMENT_LAMBDA=1              Default regularization weight")
			fmt.Println("  SEGMENT_EPSILON=0.1           Default step size")
			fmt.Println("  SEGMENT_STEPS=100             Default segment_run length")
			fmt.Println("  SEGMENT_MODEL_PATH=model.json Enable the learned regularizer")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	// Logs go to stderr; stdout is for MCP protocol
	logger.SetLevel(cfg.LogLevel)
	server.Version = Version

	logger.WithFields(logrus.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
	}).Debug("Segment MCP server starting")

	mgr, err := service.NewManager(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize session manager")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(mgr)
	if err := srv.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Server error")
	}
	mgr.CloseAll()
}
