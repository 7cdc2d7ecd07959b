package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wgomg/tably/internal/api"
	"github.com/wgomg/tably/internal/utils"
)

const shutdownTimeout = 10 * time.Second

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long:  "Start the tab analysis HTTP service. The embedding model is loaded once at startup and shared by all requests.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Listen port; overrides APP_SERVER_PORT")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.App.ServerPort = servePort
	}

	logger := utils.NewLogger(cfg.App.LogLevel, cfg.App.RawBodyLog)
	logger.Info(nil, "Starting tab analysis service %s", api.Version)
	logger.Info(nil, "Environment: %s", cfg.App.Env)
	logger.Info(nil, "Log level: %s", cfg.App.LogLevel)
	logger.Info(nil, "Embedding backend: %s", cfg.Semantic.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer, embedder, err := newAnalyzer(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer embedder.Close()

	handler := api.NewHandler(logger, analyzer, cfg)
	requestTimeout := time.Duration(cfg.App.HttpTimeoutSeconds) * time.Second

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.App.ServerPort,
		Handler:           api.NewRouter(logger, handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout + 10*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(nil, "Starting server on port %s", cfg.App.ServerPort)
		logger.Info(nil, "Endpoints:")
		logger.Info(nil, "  GET  /")
		logger.Info(nil, "  GET  /ping")
		logger.Info(nil, "  GET  /health")
		logger.Info(nil, "  GET  /status")
		logger.Info(nil, "  POST /analyze_tabs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(nil, "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(nil, "Server shutdown error: %v", err)
		return err
	}
	return <-errCh
}
