// Package server exposes the conversion workflow over HTTP for serve
// mode.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"websnatch/internal/config"
	"websnatch/internal/fetch"
	"websnatch/internal/history"
	"websnatch/internal/logging"
	"websnatch/internal/render"
)

// Deps carries everything the HTTP surface needs. History and Redis are
// optional; a nil History disables /v1/history and a nil Redis disables
// the PDF cache.
type Deps struct {
	Config  config.Config
	Fetcher *fetch.Fetcher
	Engine  render.Engine
	History *history.DB
	Redis   *redis.Client
}

// New creates and configures the Fiber app.
func New(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               deps.Config.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			logging.Warn("request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    code,
					"message": msg,
				},
			})
		},
	})

	RegisterMiddleware(app, deps.Config)
	RegisterRoutes(app, deps)

	// Ensure all responses, including 404s, return JSON.
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/v1")

	// One shared service so GET and POST /v1/pdf share the same engine
	// (and, for Chrome, the same tab pool).
	svc := NewService(deps)

	v1.Get("/pdf", svc.HandleURLConversion)
	v1.Post("/pdf", svc.HandleHTMLConversion)
	v1.Get("/history", svc.HandleHistory)
	v1.Get("/engine/stats", svc.HandleEngineStats)

	v1.Get("/monitor", monitor.New())
}
