package server

import (
	"log"
	"time"

	"entrust-concierge-be/internal/bootstrap"
	"entrust-concierge-be/internal/config"
	"entrust-concierge-be/internal/pkg/serverutils"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// messageBodyLimit covers the largest accepted chat message plus JSON framing.
const messageBodyLimit = 64 * 1024

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

type healthResponse struct {
	Availability string `json:"availability"`
	Storage      string `json:"storage"`
	Environment  string `json:"environment"`
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		AppName:     "entrust-concierge",
		BodyLimit:   messageBodyLimit,
		IdleTimeout: 2 * time.Minute,
	})

	// The widget is embedded on the marketing site, so the allowed origins
	// are the site's hosts rather than an admin dashboard.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, DELETE, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type",
	}))

	// No-op unless a tracer provider was installed.
	app.Use(otelfiber.Middleware())

	app.Use(serverutils.ErrorHandlerMiddleware())

	app.Get("/health", func(ctx *fiber.Ctx) error {
		storage := cfg.Database.StorageDriver
		if storage == "" {
			storage = config.StorageMemory
		}
		return ctx.JSON(serverutils.SuccessResponse("OK", healthResponse{
			Availability: container.Monitor.State().Status(),
			Storage:      storage,
			Environment:  cfg.App.Environment,
		}))
	})

	registerRoutes(app, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("✅ Concierge API listening on http://localhost:%s/api/concierge/v1", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

// Shutdown stops accepting connections and waits up to timeout for open
// requests. In-flight deliveries are drained separately by the container.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

func registerRoutes(app *fiber.App, c *bootstrap.Container) {
	api := app.Group("/api")

	c.ConciergeController.RegisterRoutes(api, c.VisitorTokens.Middleware())
	c.ConciergeWsHandler.RegisterRoutes(api)
}
