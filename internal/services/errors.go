// Package services defines the business logic for the organizational
// structure, its audit trail and the HR assistant. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// Structural invariant violations are not listed here: they are returned
// as *orgtree.ValidationError (possibly inside orgtree.ValidationErrors)
// so callers can surface the offending field.
//
// Translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import "errors"

// Unit-related errors.
var (
	// ErrUnitNotFound indicates that the requested unit does not exist or is
	// no longer active.
	ErrUnitNotFound = errors.New("unit not found")
)

// Chat-related errors.
var (
	// ErrChatSessionNotFound indicates that the requested chat session does
	// not exist.
	ErrChatSessionNotFound = errors.New("chat session not found")

	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrEmptyPrompt is returned when a chat request carries no text.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a prompt exceeds the accepted rune length.
	ErrTooLong = errors.New("prompt too long")

	// ErrUpstream wraps failures of external collaborators: the completion
	// API and the diagram renderer.
	ErrUpstream = errors.New("upstream service failed")
)
