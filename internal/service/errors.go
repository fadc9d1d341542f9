package service

import "errors"

var (
	// ErrValidation marks malformed input; never retried.
	ErrValidation = errors.New("invalid payment request")
	// ErrUnavailable marks an initiation that exhausted its retry budget
	// against the provider.
	ErrUnavailable = errors.New("payment service unavailable")
)
