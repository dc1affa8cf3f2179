// SPDX-License-Identifier: MIT

package daemon

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

var (
	// ErrMissingLogger is returned when logger is not provided
	ErrMissingLogger = errors.New("logger is required")

	// ErrMissingHandler is returned when the HTTP handler is not provided
	ErrMissingHandler = errors.New("HTTP handler is required")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("manager already started")

	// ErrServerStartFailed is returned when the listener cannot be bound.
	ErrServerStartFailed = errors.New("server failed to start")
)

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	Logger  zerolog.Logger
	Handler http.Handler
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.Handler == nil {
		return ErrMissingHandler
	}
	return nil
}
