// Package cmd provides the coach service commands.
//
// Commands:
//   - serve: HTTP API server with NDJSON streaming chat
//   - migrate: run passage store migrations and exit
//   - version: print build information
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/reframe-labs/coach/internal/log"
)

// Execute is the main entry point for the coach service.
func Execute() error {
	logger := newLogger()
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "migrate":
		return runMigrate(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func newLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo, JSON: true}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	return log.New(cfg)
}

func runHelp() {
	fmt.Println("coach - conversational physical-activity coaching service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  coach serve [addr]  Start the HTTP API server")
	fmt.Println("  coach migrate       Run passage store migrations and exit")
	fmt.Println("  coach version       Show version information")
	fmt.Println("  coach help          Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY      Required: Gemini API key")
	fmt.Println("  COACH_API_KEYS      Required: comma-separated client credentials")
	fmt.Println("  DATABASE_URL        Optional: overrides COACH_POSTGRES_* settings")
	fmt.Println("  DEBUG               Optional: enable debug logging")
}
