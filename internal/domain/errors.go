package domain

import "errors"

var (
	ErrNotFound          = errors.New("order not found")
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyExists     = errors.New("order already exists")
	// ErrStorage marks I/O or transaction failures; callers may retry.
	ErrStorage = errors.New("storage failure")
)
