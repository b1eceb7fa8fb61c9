package model

import "errors"

var (
	// ErrMessageRequired is returned when a diagram request has no prompt.
	ErrMessageRequired = errors.New("message is required")

	// ErrCodeRequired is returned when a response carries no diagram code.
	ErrCodeRequired = errors.New("diagram code is required")

	// ErrRequestNotFound is returned when a request does not exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrRequestCompleted is returned when an outstanding request was expected
	// but the request has already been answered.
	ErrRequestCompleted = errors.New("request already completed")

	// ErrInvalidRetention is returned when a purge horizon is not positive.
	ErrInvalidRetention = errors.New("retention days must be positive")
)
