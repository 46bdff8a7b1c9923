package api

import (
	"time"

	"fitsync-backend-go/internal/core"
	"fitsync-backend-go/internal/models"
)

// ErrorResponse is the generic structure for returning errors via the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SignInRequest carries the ID token produced by the client-side ceremony.
type SignInRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

// ProfileResponse is the wire shape of a user profile.
type ProfileResponse struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email,omitempty"`
	DisplayName        string    `json:"displayName"`
	CreatedAt          time.Time `json:"createdAt"`
	SubscriptionStatus string    `json:"subscriptionStatus"`
}

// SessionResponse reports the current session state and, when authenticated,
// the cached profile.
type SessionResponse struct {
	State   string           `json:"state"`
	Profile *ProfileResponse `json:"profile,omitempty"`
}

// ProfileListResponse wraps a bulk profile query result.
type ProfileListResponse struct {
	Profiles []ProfileResponse `json:"profiles"`
	Count    int               `json:"count"`
}

func toProfileResponse(p *models.UserProfile) *ProfileResponse {
	if p == nil {
		return nil
	}
	return &ProfileResponse{
		ID:                 p.ID,
		Email:              p.Email,
		DisplayName:        p.DisplayName,
		CreatedAt:          p.CreatedAt,
		SubscriptionStatus: string(p.SubscriptionStatus),
	}
}

func toSessionResponse(snap core.Snapshot) SessionResponse {
	return SessionResponse{
		State:   snap.State.String(),
		Profile: toProfileResponse(snap.User),
	}
}
