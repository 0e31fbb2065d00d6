package models

import "time"

// User is the slice of the profile record this subsystem touches.
// Profile storage is owned elsewhere; the wallet only reads the id and
// writes the premium tier flag as the last step of reconciliation.
type User struct {
	ID          string     `json:"id" example:"u_184"`
	DisplayName string     `json:"displayName" example:"Maya"`
	PremiumTier string     `json:"premiumTier" example:"gold"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}
