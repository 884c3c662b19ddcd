package delivery

import "errors"

// Sentinel errors for delivery use case operations.
var (
	// ErrJobNotFound indicates that no job exists with the requested id.
	ErrJobNotFound = errors.New("job not found")

	// ErrQueueRunning is returned by Start when the dispatch loop is already running.
	ErrQueueRunning = errors.New("delivery queue already running")
)
