package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Skylto-inc/dealmate-lootpacks/auth"
	"github.com/Skylto-inc/dealmate-lootpacks/config"
	"github.com/Skylto-inc/dealmate-lootpacks/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// App represents the lootpack service application
type App struct {
	engine      *gin.Engine
	config      *config.Config
	logger      zerolog.Logger
	packHandler *PackHandler
	httpServer  *http.Server
	onShutdown  []func()
}

// Options holds server configuration options
type Options struct {
	Config      *config.Config
	Logger      zerolog.Logger
	PackService *PackService
}

// New creates a new lootpack service application
func New(opts Options) *App {
	// Configure decimal.Decimal to marshal as JSON number instead of string
	// WARNING: This may cause precision loss for decimals with many digits when
	// unmarshaled by clients using IEEE 754 double-precision (e.g., JavaScript)
	decimal.MarshalJSONWithoutQuotes = true

	// Set Gin mode
	if opts.Config.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	app := &App{
		engine: engine,
		config: opts.Config,
		logger: opts.Logger,
	}

	app.packHandler = NewPackHandler(opts.PackService, opts.PackService.broadcaster, opts.Logger)

	return app
}

// UseCommonMiddlewares adds common middlewares to the application
func (a *App) UseCommonMiddlewares() {
	// Recovery middleware (must be first)
	a.engine.Use(middleware.Recovery(a.logger))

	// Trace ID middleware
	a.engine.Use(middleware.TraceID())

	// Logging middleware
	a.engine.Use(middleware.Logging(a.logger))

	// CORS middleware if enabled
	if a.config.Server.EnableCORS {
		a.engine.Use(middleware.CORS())
	}
}

// UseMiddleware adds a custom middleware
func (a *App) UseMiddleware(m gin.HandlerFunc) {
	a.engine.Use(m)
}

// RegisterHealthCheck adds health check endpoints
func (a *App) RegisterHealthCheck() {
	a.engine.GET("/health", a.healthCheck)
	a.engine.GET("/api/health", a.healthCheck)
}

func (a *App) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   a.config.Environment,
	})
}

// RegisterLootpackRoutes registers the lootpack API routes.
//
// Routes registered:
//   - GET  /api/lootpacks              -> PackHandler.ListPacks
//   - GET  /api/lootpacks/stats        -> PackHandler.GetStats
//   - POST /api/lootpacks/:id/open     -> PackHandler.OpenPack
//   - GET  /api/lootpacks/rewards      -> PackHandler.GetInventory
//   - GET  /api/lootpacks/drops/stream -> PackHandler.StreamDrops (WebSocket)
//   - POST /api/ads/complete           -> PackHandler.CompleteAd
func (a *App) RegisterLootpackRoutes() {
	api := a.engine.Group("/api")
	api.Use(auth.JWTMiddleware(a.config.JWT.Secret, a.logger))
	{
		packs := api.Group("/lootpacks")
		{
			packs.GET("", a.packHandler.ListPacks)
			packs.GET("/stats", a.packHandler.GetStats)
			packs.POST("/:id/open", a.packHandler.OpenPack)
			packs.GET("/rewards", a.packHandler.GetInventory)
			packs.GET("/drops/stream", a.packHandler.StreamDrops)
		}

		api.POST("/ads/complete", a.packHandler.CompleteAd)
	}

	a.logger.Info().Msg("Lootpack routes registered: /api/lootpacks")
}

// Router returns the Gin engine for custom route registration
func (a *App) Router() *gin.Engine {
	return a.engine
}

// Group creates a route group
func (a *App) Group(path string, handlers ...gin.HandlerFunc) *gin.RouterGroup {
	return a.engine.Group(path, handlers...)
}

// OnShutdown registers a function to be called on shutdown
func (a *App) OnShutdown(fn func()) {
	a.onShutdown = append(a.onShutdown, fn)
}

// Run starts the HTTP server
func (a *App) Run() error {
	addr := fmt.Sprintf(":%d", a.config.Server.Port)

	a.httpServer = &http.Server{
		Addr:         addr,
		Handler:      a.engine,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		a.logger.Info().
			Int("port", a.config.Server.Port).
			Str("environment", a.config.Environment).
			Msg("Starting HTTP server")

		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	return a.waitForShutdown()
}

// waitForShutdown blocks until an interrupt arrives, then drains the server.
func (a *App) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, fn := range a.onShutdown {
		fn()
	}

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}

	a.logger.Info().Msg("Server exited")
	return nil
}
