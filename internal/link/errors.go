package link

import "errors"

// Domain-specific errors for link operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidArgument is returned for empty, nil, oversized or malformed inputs.
	ErrInvalidArgument = errors.New("link: invalid argument")

	// ErrAlreadyActive is returned when Connect is called while a control loop is running.
	ErrAlreadyActive = errors.New("link: already active")

	// ErrNotConnected is returned when publishing while the broker connection is down.
	ErrNotConnected = errors.New("link: not connected")

	// ErrNotFound is returned when unsubscribing a topic that is not registered.
	ErrNotFound = errors.New("link: subscription not found")

	// ErrTransportFailure wraps an error reported by the transport engine.
	// The wrapped error carries the engine's reason text.
	ErrTransportFailure = errors.New("link: transport failure")

	// ErrInvalidState is returned when Will or TLS settings are changed after Connect.
	ErrInvalidState = errors.New("link: invalid state")
)
