package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"fitsync-backend-go/internal/api"
	"fitsync-backend-go/internal/config"
	"fitsync-backend-go/internal/core"
	"fitsync-backend-go/internal/credentials"
	"fitsync-backend-go/internal/identity"
	"fitsync-backend-go/internal/middleware"
	"fitsync-backend-go/internal/profilestore"
)

func main() {
	// Load .env if present. In production, environment variables are set
	// directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env file: %v", err)
	}

	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	var logger *zap.Logger
	if strings.ToLower(appConfig.GinMode) == "release" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("port", appConfig.Port))

	initCtx, cancelInit := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelInit()
	clients, err := profilestore.InitFirebase(initCtx, appConfig, logger)
	if err != nil {
		logger.Fatal("failed to initialize firebase", zap.Error(err))
	}
	defer clients.Close()
	logger.Info("firebase clients initialized", zap.String("project", appConfig.FirebaseProjectID))

	profileStore := profilestore.NewFirestoreStore(clients.Firestore, logger)
	credentialStore := credentials.NewFileStore(appConfig.CredentialStorePath)
	provider := identity.NewFirebaseProvider(clients.Auth, logger)
	sessions := core.NewSessionService(provider, profileStore, credentialStore, logger)

	// Resolve any previously established session before serving traffic.
	// Failure here is not fatal: the session settles on unauthenticated and
	// the client can sign in again.
	if err := sessions.ResolveSession(initCtx); err != nil {
		logger.Warn("startup session resolution failed", zap.Error(err))
	}
	snap := sessions.Snapshot()
	logger.Info("session resolved", zap.Stringer("state", snap.State))

	if strings.ToLower(appConfig.GinMode) == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Recovery(logger))
	if appConfig.ClientURL != "" {
		router.Use(middleware.CORS(appConfig.ClientURL))
		logger.Info("CORS enabled", zap.String("clientURL", appConfig.ClientURL))
	} else {
		logger.Warn("CORS disabled: CLIENT_URL is not configured")
	}

	api.SetupRoutes(router, logger, sessions, profileStore)

	httpServer := &http.Server{
		Addr:    ":" + appConfig.Port,
		Handler: router,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("addr", httpServer.Addr), zap.String("ginMode", gin.Mode()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}
