package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"websnatch/internal/config"
	"websnatch/internal/fetch"
	"websnatch/internal/logging"
	"websnatch/internal/render"
	"websnatch/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP conversion service",
		Long: `Serve exposes the conversion workflow over HTTP:

  GET  /v1/pdf?url=...   fetch a page and return it as a PDF
  POST /v1/pdf           render caller-supplied HTML (form field "html")
  GET  /v1/history       recent conversions from the local archive
  GET  /v1/engine/stats  render engine observability

The listener is configured in the server section of the config file.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := setupConfig(cmd)
	if err != nil {
		return err
	}

	eng, err := render.New("", cfg)
	if err != nil {
		return err
	}

	deps := server.Deps{
		Config:  cfg,
		Fetcher: fetch.NewFromConfig(cfg.Fetch),
		Engine:  eng,
	}
	if hist := openHistory(cfg); hist != nil {
		deps.History = hist
		defer hist.Close()
	}
	if cfg.Cache.PDFCacheEnabled {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.RedisPDFDB,
		})
	}

	app := server.New(deps)

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed

	if chrome, ok := eng.(*render.Chrome); ok {
		chrome.Close()
	}
	return nil
}

// startServer starts the Fiber app and listens for shutdown signals.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("server error", "error", err.Error())
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint

	logging.Warn("shutdown signal received, closing server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("server forced to shutdown", "error", err.Error())
	}

	close(idleConnsClosed)
	logging.Info("server stopped cleanly")
}
