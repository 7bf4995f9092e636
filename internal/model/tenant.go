package model

import "time"

// Tenant represents an isolated customer company. It is the root of all data
// isolation: every other entity is namespaced under its tenant.
type Tenant struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	SubscriptionTier string    `json:"subscription_tier"`
	CreatedAt        time.Time `json:"created_at"`
}
