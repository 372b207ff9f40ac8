package handler

import (
	"possync/pkg/config"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Router struct {
	handler Handler
	app     *fiber.App
	conf    *config.Config
	logger  *zap.SugaredLogger
}

func NewRouter(handler Handler, app *fiber.App, conf *config.Config, logger *zap.SugaredLogger) *Router {
	return &Router{
		logger:  logger,
		app:     app,
		conf:    conf,
		handler: handler,
	}
}

func (r *Router) RegisterRouter() {
	r.app.Get("/health", r.handler.HealthCheck)
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	r.app.Use("/swagger/*", swagger.New(swagger.Config{
		DeepLinking: false,
		URL:         "/swagger/doc.json",
	}))

	api := r.app.Group("/api")

	api.Post("/crud-log", r.handler.LogCRUDOperation)

	sync := api.Group("/sync")
	sync.Get("/status", r.handler.SyncStatus)
	sync.Post("/push", r.handler.TriggerPush)
	sync.Post("/pull", r.handler.TriggerPull)
	sync.Post("/retry", r.handler.TriggerRetry)
	sync.Post("/cleanup", r.handler.TriggerCleanup)
}
