package stream

import "errors"

var (
	// ErrMessageLogRequired is returned when a message log is not provided.
	ErrMessageLogRequired = errors.New("message log required")

	// ErrHandlerRequired is returned when a message handler is not provided.
	ErrHandlerRequired = errors.New("message handler required")

	// ErrAlreadyRunning is returned by Start on a running listener.
	ErrAlreadyRunning = errors.New("listener already running")

	// ErrNoChannels is returned when the listener has no channels to consume.
	ErrNoChannels = errors.New("no channels configured")
)
