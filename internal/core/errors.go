package core

import "errors"

// Sentinel errors shared across services and handlers.
var (
	// ErrNotFound marks a missing conversation, message or document and
	// maps to a 404 at the API boundary.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed request input, rejected before any
	// retrieval or generation work begins.
	ErrValidation = errors.New("validation failed")
)
