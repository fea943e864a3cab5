// Package service provides the chat and account logic behind the HTTP handlers.
package service

import "errors"

// Sentinel errors. Use errors.Is() to check for these in calling code.
var (
	// ErrEmptyInput indicates a prompt that is empty after trimming.
	ErrEmptyInput = errors.New("empty input")

	// ErrInputTooLong indicates a prompt above the configured maximum length.
	ErrInputTooLong = errors.New("input too long")

	// ErrUpstream wraps completion and image service failures.
	ErrUpstream = errors.New("upstream service error")

	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountUnverified  = errors.New("account not verified")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrWrongPassword      = errors.New("wrong password")
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrMissingCredentials = errors.New("email and password required")
)
