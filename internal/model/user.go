package model

import "time"

// UserStatus is the activation state of a staff/volunteer account
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

// User represents one staff/volunteer account. TenantID is immutable after
// creation; Role is mutable only by an admin.
type User struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash,omitempty"` // bcrypt hash; stripped by handlers before responding
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Sanitized returns a copy safe to serialize into API responses
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}
