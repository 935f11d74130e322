package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrNotFound indicates the server has no data for the request
	ErrNotFound = errors.New("not found")

	// ErrServerOffline indicates the backend is unreachable
	ErrServerOffline = errors.New("backend is unreachable")

	// ErrPlayback indicates the player widget could not play a source
	ErrPlayback = errors.New("playback failed")

	// ErrNoPlayer indicates no player widget is available on this system
	ErrNoPlayer = errors.New("no player available")
)
