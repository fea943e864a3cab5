// Package models defines the data structures shared by storage, services and handlers.
package models

import "time"

// Account is a registered user, keyed by e-mail identity.
type Account struct {
	Email             string    `json:"email"`
	PasswordHash      string    `json:"password_hash"`
	Verified          bool      `json:"verified"`
	VerificationToken *string   `json:"verification_token,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
