package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/multiwallet/internal/middleware"
	"github.com/congo-pay/multiwallet/internal/routes"
)

// Server wraps the Fiber application and the wired services.
type Server struct {
	app      *fiber.App
	address  string
	services *routes.Services
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(d routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:               d.Cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          middleware.ErrorHandler,
		DisableStartupMessage: !d.Cfg.IsDevelopment(),
	})

	services, err := routes.Setup(app, d)
	if err != nil {
		return nil, err
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger.Info("routes configured", "postgres", d.DB != nil, "redis", d.Cache != nil, "broker", d.Broker != nil)

	return &Server{app: app, address: d.Cfg.Address(), services: services}, nil
}

// App exposes the Fiber application, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Services returns the wired services.
func (s *Server) Services() *routes.Services { return s.services }

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.address)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
