package models

import "time"

// SubscriptionStatus is the closed set of subscription states a profile can be in.
type SubscriptionStatus string

const (
	SubscriptionNone    SubscriptionStatus = "none"
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// ParseSubscriptionStatus maps a raw remote value onto the closed set.
// Anything absent or unrecognized degrades to SubscriptionNone.
func ParseSubscriptionStatus(raw string) SubscriptionStatus {
	switch SubscriptionStatus(raw) {
	case SubscriptionActive:
		return SubscriptionActive
	case SubscriptionExpired:
		return SubscriptionExpired
	default:
		return SubscriptionNone
	}
}

// PlaceholderDisplayName is used when the identity provider withholds the
// user's real name. DisplayName must never be empty.
const PlaceholderDisplayName = "Athlete"

// UserProfile represents the identity of a human user of the system.
// ID is the identity-provider UID and doubles as the Firestore document ID,
// so it is excluded from the document body and restored from the doc ref on read.
type UserProfile struct {
	ID                 string             `json:"id" firestore:"-"`
	Email              string             `json:"email,omitempty" firestore:"email"`
	DisplayName        string             `json:"displayName" firestore:"displayName"`
	CreatedAt          time.Time          `json:"createdAt" firestore:"createdAt"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus" firestore:"subscriptionStatus"`
}
