package api

import (
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/demopark/accounts/docs" // registers the swagger document
	"github.com/demopark/accounts/internal/api/handler"
	"github.com/demopark/accounts/internal/api/middleware"
	"github.com/demopark/accounts/internal/core/domain"
	"github.com/demopark/accounts/internal/core/ports"
)

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Accounts ports.AccountService
	Auth     ports.AuthService
	Verifier ports.TokenVerifier

	// Checks are pinged by the readiness probe, keyed by dependency name.
	Checks map[string]handler.Pinger

	Logger zerolog.Logger

	// Registry receives the HTTP metrics. nil uses the default Prometheus registry.
	Registry *prometheus.Registry

	// Now is the clock used for token issuance and verification. nil uses time.Now.
	Now func() time.Time
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Logger)

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		registerer, gatherer = deps.Registry, deps.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: func() string { return ulid.Make().String() },
	}))
	e.Use(middleware.RequestLogger(deps.Logger))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	authHandler := handler.NewAuthHandler(deps.Auth, now)
	accountHandler := handler.NewAccountHandler(deps.Accounts)
	requireAuth := middleware.Auth(deps.Verifier, now)
	adminOnly := middleware.RBAC(domain.RoleAdmin)

	// --- API v1 ---
	v1 := e.Group("/api/v1")
	v1.POST("/auth", authHandler.Login)
	v1.POST("/users", accountHandler.Create)

	users := v1.Group("/users", requireAuth)
	users.GET("", accountHandler.List, adminOnly)
	users.GET("/:id", accountHandler.Get)
	users.PATCH("/:id", accountHandler.ChangePassword)
	users.PUT("/:id/role", accountHandler.ChangeRole, adminOnly)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Checks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Operations ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
