package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fitsync-backend-go/internal/models"
	"fitsync-backend-go/internal/profilestore"
)

// ProfileHandler exposes bulk profile queries.
type ProfileHandler struct {
	profiles profilestore.Store
	logger   *zap.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles profilestore.Store, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// ListProfiles handles GET /api/v1/profiles?subscriptionStatus=&limit=.
// Partial per-record failures are absorbed by the store; only the all-failed
// case surfaces as an error here.
func (h *ProfileHandler) ListProfiles(c *gin.Context) {
	var pred profilestore.Predicate
	if raw := c.Query("subscriptionStatus"); raw != "" {
		pred = profilestore.BySubscriptionStatus(models.ParseSubscriptionStatus(raw))
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	profiles, err := h.profiles.Query(c.Request.Context(), pred, limit)
	if err != nil {
		var partial *profilestore.PartialFailureError
		if errors.As(err, &partial) {
			h.logger.Error("profile query failed for every record",
				zap.Int("failed", partial.Count()))
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Error:   "profile query failed",
				Details: partial.Error(),
			})
			return
		}
		h.logger.Error("profile query failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "profile store unavailable"})
		return
	}

	resp := ProfileListResponse{Profiles: make([]ProfileResponse, 0, len(profiles))}
	for _, p := range profiles {
		resp.Profiles = append(resp.Profiles, *toProfileResponse(p))
	}
	resp.Count = len(resp.Profiles)
	c.JSON(http.StatusOK, resp)
}
