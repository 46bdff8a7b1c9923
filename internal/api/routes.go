package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fitsync-backend-go/internal/core"
	"fitsync-backend-go/internal/profilestore"
)

// SetupRoutes wires all handlers under /api/v1. Global middleware (request
// ID, logging, recovery, CORS) is applied to the router before this is
// called, in main.
func SetupRoutes(
	router *gin.Engine,
	logger *zap.Logger,
	sessions core.SessionService,
	profiles profilestore.Store,
) {
	sessionHandler := NewSessionHandler(sessions, logger)
	profileHandler := NewProfileHandler(profiles, logger)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := router.Group("/api/v1")
	{
		session := apiV1.Group("/session")
		{
			session.GET("", sessionHandler.GetSession)
			session.POST("/resolve", sessionHandler.ResolveSession)
			session.POST("/sign-in", sessionHandler.SignIn)
			session.POST("/sign-out", sessionHandler.SignOut)
		}

		apiV1.GET("/profiles", profileHandler.ListProfiles)
	}

	logger.Info("routes registered")
}
