package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/reframe-labs/coach/internal/api"
	"github.com/reframe-labs/coach/internal/app"
	"github.com/reframe-labs/coach/internal/config"
	"github.com/reframe-labs/coach/internal/log"
	"github.com/reframe-labs/coach/internal/voice"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // NDJSON streaming needs a long write window
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// runServe initializes and starts the HTTP API server.
func runServe(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr, err := parseServeAddr(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting coach API server", "version", Version, "config", cfg)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	go a.Sessions.RunSweeper(ctx, cfg.SweepInterval)

	var transcriber voice.Transcriber
	var synthesizer voice.Synthesizer
	if a.Speech != nil {
		transcriber = a.Speech
		synthesizer = a.Speech
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:          logger,
		Store:           a.Sessions,
		Engine:          a.Engine,
		Transcriber:     transcriber,
		Synthesizer:     synthesizer,
		APIKeys:         cfg.APIKeys,
		CORSOrigins:     cfg.CORSOrigins,
		SessionsPerHour: cfg.SessionsPerHour,
		MessagesPerHour: cfg.MessagesPerHour,
		VoiceConcurrent: cfg.VoiceConcurrent,
		AudioMaxBytes:   cfg.AudioMaxBytes,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"health", "/healthz",
		"voice", a.Speech != nil,
		"retrieval", cfg.RetrievalEnabled,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
