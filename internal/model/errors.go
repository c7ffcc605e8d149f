package model

import "errors"

// Common errors used across the application
var (
	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Role errors
	ErrRoleNotFound  = errors.New("role not found")
	ErrDuplicateRole = errors.New("duplicate role id")
)
