package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

func main() {
	_ = godotenv.Load()

	isProduction := os.Getenv("GIN_MODE") == "release" || os.Getenv("ENV") == "production"
	logInfo("Starting Word Wizard in %s mode", map[bool]string{true: "production", false: "development"}[isProduction])

	app := &App{
		Sessions:       make(map[string]*GameSession),
		LimiterMap:     make(map[string]*rate.Limiter),
		IsProduction:   isProduction,
		StartTime:      time.Now(),
		CookieMaxAge:   getEnvDuration("COOKIE_MAX_AGE", 24*365*10*time.Hour),
		SessionTimeout: getEnvDuration("SESSION_TIMEOUT", 2*time.Hour),
		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),
		BackupToken:    os.Getenv("BACKUP_TOKEN"),
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr != "" {
		store, err := NewRedisStore(context.Background(), redisAddr, os.Getenv("REDIS_PASSWORD"), getEnvInt("REDIS_DB", 0))
		if err != nil {
			logFatal("Failed to connect to store: %v", err)
		}
		logInfo("Using Redis store at %s", redisAddr)
		app.Store = store
	} else {
		logWarn("REDIS_ADDR not set, scores will not survive a restart")
		app.Store = NewMemoryStore()
	}

	app.Words = NewGeminiProvider(os.Getenv("GENERATION_ENDPOINT"), os.Getenv("API_KEY"))
	if os.Getenv("API_KEY") == "" {
		logWarn("API_KEY not set, every round will use the fallback word")
	}

	go app.sessionCleanupScheduler(getEnvDuration("SESSION_CLEANUP_INTERVAL", 15*time.Minute))

	router := app.setupRouter()
	startServer(router)
}

// setupRouter wires middleware and routes.
func (app *App) setupRouter() *gin.Engine {
	router := gin.Default()

	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression))
	router.Use(requestIDMiddleware())
	router.Use(noStoreMiddleware())

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logWarn("Failed to set trusted proxies: %v", err)
	}

	// Identity endpoints stay open; everything else requires the player
	// cookie and redirects to the entry page without it.
	router.POST(RouteSavePlayer, app.rateLimitMiddleware(), app.savePlayerHandler)
	router.GET(RouteGetPlayer, app.getPlayerHandler)
	router.GET("/healthz", app.healthzHandler)

	guarded := router.Group("/", identityGuardMiddleware())
	guarded.GET(RouteScores, app.scoresHandler)
	guarded.POST(RouteScores, app.rateLimitMiddleware(), app.appendScoreHandler)
	guarded.GET(RoutePlayerStats, app.playerStatsHandler)
	guarded.POST(RoutePlayerStats, app.rateLimitMiddleware(), app.savePlayerStatsHandler)
	guarded.POST(RouteNewRound, app.rateLimitMiddleware(), app.newRoundHandler)
	guarded.GET(RouteGameState, app.gameStateHandler)
	guarded.POST(RouteGuess, app.rateLimitMiddleware(), app.guessHandler)
	guarded.POST(RouteFreeze, app.rateLimitMiddleware(), app.freezeHandler)
	guarded.POST(RouteReset, app.rateLimitMiddleware(), app.resetHandler)
	guarded.GET(RouteBackup, app.backupHandler)

	return router
}

func startServer(router *gin.Engine) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		logInfo("Shutdown signal received, shutting down server gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logWarn("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	logInfo("Server starting on http://localhost:%s", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	logInfo("Server shutdown complete")
}
