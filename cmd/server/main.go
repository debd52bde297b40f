package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/invest-api/internal/auth"
	"github.com/ksred/invest-api/internal/database"
	"github.com/ksred/invest-api/internal/distribution"
	"github.com/ksred/invest-api/internal/ledger"
	"github.com/ksred/invest-api/internal/positions"
	"github.com/ksred/invest-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the brokerage API server with graceful shutdown
// support. It wires up the database, the feature services and the two
// distribution processors that host the daily and hourly payout cadence.
func main() {
	// Initialize database
	db, err := database.NewDatabase(os.Getenv("DATABASE_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "invest-secret-key"
	}

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	positionService := positions.NewService(db)
	positionHandlers := positions.NewGinHandlers(positionService)

	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	distributionService := distribution.NewService(db)
	distributionHandlers := distribution.NewGinHandlers(distributionService)

	// Start one distribution processor per cadence. Running them alongside
	// manual admin triggers is safe: every period is credited at most once.
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go distribution.NewProcessor(distributionService, distribution.KindDaily).Start(processorCtx)
	go distribution.NewProcessor(distributionService, distribution.KindHourly).Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, positionHandlers, ledgerHandlers, distributionHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Position and account routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	positionHandlers *positions.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	distributionHandlers *distribution.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Position routes
		pos := v1.Group("/positions")
		pos.Use(middleware.JWTAuth())
		{
			pos.POST("", positionHandlers.OpenPositionHandler())
			pos.GET("", positionHandlers.ListPositionsHandler())
			pos.GET("/:position_id", positionHandlers.GetPositionHandler())
			pos.POST("/:position_id/cancel", positionHandlers.CancelPositionHandler())
		}

		// Account routes
		account := v1.Group("/account")
		account.Use(middleware.JWTAuth())
		{
			account.GET("/balance", ledgerHandlers.GetBalanceHandler())
			account.GET("/transactions", ledgerHandlers.ListTransactionsHandler())
			account.POST("/deposits", ledgerHandlers.DepositHandler())
			account.POST("/withdrawals", ledgerHandlers.WithdrawHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth())
		{
			internal.POST("/distributions/:kind/run", distributionHandlers.RunDistributionHandler())
			internal.GET("/distributions/:kind/preview", distributionHandlers.PreviewDistributionHandler())
		}
	}
}
