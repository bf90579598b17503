package server

import "errors"

var (
	// ErrHandlerRequired is returned when no message handler is provided.
	ErrHandlerRequired = errors.New("message handler required")

	// ErrAlreadyServing is returned when Serve is called twice.
	ErrAlreadyServing = errors.New("server already serving")
)
