package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/totem/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/totem/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/totem/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/totem/internal/ws"
)

// Kiosk is everything the HTTP surface needs from the session service.
type Kiosk interface {
	handler.SessionService
	handler.IdentityService
}

type Dependencies struct {
	Kiosk        Kiosk
	Hub          *ws.Hub
	Gatherer     prometheus.Gatherer
	Checks       []handler.ReadinessCheck
	KioskKeyHash string
	FrameRate    float64
	Version      string
}

type Router struct {
	app          *fiber.App
	logger       *slog.Logger
	deps         *Dependencies
	rateLimiter  *middleware.RateLimiter
	frameLimiter *middleware.RateLimiter
	cancelHub    context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Totem Kiosk API",
		BodyLimit:    12 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var (
		version string
		checks  []handler.ReadinessCheck
	)
	if r.deps != nil {
		version = r.deps.Version
		checks = r.deps.Checks
	}

	// Health check endpoints (no auth required)
	healthHandler := handler.NewHealthHandler(version, checks...)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps != nil && r.deps.Gatherer != nil {
		r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Only configure kiosk routes if dependencies were provided
	if r.deps == nil || r.deps.Kiosk == nil {
		return
	}

	v1 := r.app.Group("/v1")
	v1.Use(middleware.KioskAuth(r.deps.KioskKeyHash))

	r.rateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	r.frameLimiter = middleware.NewRateLimiter(middleware.FrameRateLimiterConfig(r.deps.FrameRate))

	sessionHandler := handler.NewSessionHandler(r.deps.Kiosk, r.logger)
	identityHandler := handler.NewIdentityHandler(r.deps.Kiosk, r.logger)

	// Frames arrive at camera rate and get their own per-session budget
	v1.Post("/sessions/:id/frames", r.frameLimiter.Handler(), sessionHandler.PushFrame)

	if r.deps.Hub != nil {
		hubCtx, hubCancel := context.WithCancel(context.Background())
		r.cancelHub = hubCancel
		go r.deps.Hub.Run(hubCtx)

		v1.Get("/sessions/:id/ws", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub, r.deps.Kiosk, r.logger))
	}

	limited := r.rateLimiter.Handler()

	// Session routes
	v1.Post("/sessions/recognition", limited, sessionHandler.StartRecognition)
	v1.Post("/sessions/enrollment", limited, sessionHandler.StartEnrollment)
	v1.Get("/sessions/:id", limited, sessionHandler.Get)
	v1.Delete("/sessions/:id", limited, sessionHandler.Cancel)

	// Identity routes
	v1.Get("/identities", limited, identityHandler.List)
	v1.Delete("/identities/:label", limited, identityHandler.Delete)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop WebSocket hub
	if r.cancelHub != nil {
		r.cancelHub()
	}

	// Stop rate limiter cleanup goroutines
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}
	if r.frameLimiter != nil {
		r.frameLimiter.Stop()
	}

	return r.app.Shutdown()
}
