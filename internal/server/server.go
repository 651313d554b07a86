// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package server exposes the configured stores over HTTP
package server

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qolzam/dbkit/internal/database"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/orm"
	"github.com/qolzam/dbkit/internal/pkg/log"
)

// ErrStoreNotFound is returned for a store name that is not configured
var ErrStoreNotFound = errors.New("store not found")

// ErrRecordNotFound is returned when no row carries the requested id
var ErrRecordNotFound = errors.New("record not found")

// Backend resolves stores and the active database
type Backend interface {
	Store(name string) (*orm.Store, bool)
	Database() (*database.DB, error)
}

// Config configures the HTTP app
type Config struct {
	// Gatherer, when set, is served on GET /metrics
	Gatherer prometheus.Gatherer
}

// New creates the fiber app serving backend
func New(backend Backend, cfg Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New(), RequestID())

	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	RegisterRoutes(app, NewHandler(backend))
	return app
}

// RegisterRoutes mounts the health check and the store routes
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)

	api := app.Group("/api")
	api.Get("/:store", h.List)
	api.Post("/:store", h.Create)
	api.Put("/:store/:id", h.Update)
	api.Delete("/:store/:id", h.Delete)
}

// StatusOf maps an error to its HTTP status
func StatusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, ErrStoreNotFound), errors.Is(err, ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrState):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := StatusOf(err)
	if code >= http.StatusInternalServerError {
		log.ErrorWithContext(c.UserContext(), "[ErrorHandler] %s %s: %s", c.Method(), c.Path(), err.Error())
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
