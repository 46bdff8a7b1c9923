package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fitsync-backend-go/internal/core"
	"fitsync-backend-go/internal/credentials"
	"fitsync-backend-go/internal/identity"
)

// SessionHandler exposes the session service over HTTP.
type SessionHandler struct {
	sessions core.SessionService
	logger   *zap.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessions core.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// GetSession handles GET /api/v1/session.
func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionResponse(h.sessions.Snapshot()))
}

// ResolveSession handles POST /api/v1/session/resolve. A session that fails
// to resolve is not an HTTP error: the snapshot reports unauthenticated and
// the client can offer sign-in.
func (h *SessionHandler) ResolveSession(c *gin.Context) {
	if err := h.sessions.ResolveSession(c.Request.Context()); err != nil {
		if errors.Is(err, core.ErrBusy) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "session operation already in flight"})
			return
		}
		h.logger.Info("session did not resolve", zap.Error(err))
	}
	c.JSON(http.StatusOK, toSessionResponse(h.sessions.Snapshot()))
}

// SignIn handles POST /api/v1/session/sign-in.
func (h *SessionHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	profile, err := h.sessions.SignIn(c.Request.Context(), req.IDToken)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrBusy):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "session operation already in flight"})
		case errors.Is(err, identity.ErrProvider):
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "sign-in failed", Details: err.Error()})
		case errors.Is(err, credentials.ErrStoreUnavailable):
			c.JSON(http.StatusBadGateway, ErrorResponse{Error: "credential store unavailable"})
		default:
			// Remote profile store faults.
			h.logger.Error("sign-in failed at profile store", zap.Error(err))
			c.JSON(http.StatusBadGateway, ErrorResponse{Error: "profile store unavailable"})
		}
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		State:   core.StateAuthenticated.String(),
		Profile: toProfileResponse(profile),
	})
}

// SignOut handles POST /api/v1/session/sign-out. Always succeeds.
func (h *SessionHandler) SignOut(c *gin.Context) {
	h.sessions.SignOut()
	c.Status(http.StatusNoContent)
}
