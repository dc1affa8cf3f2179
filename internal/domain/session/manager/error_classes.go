// SPDX-License-Identifier: MIT

package manager

import (
	"context"
	"errors"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// Error classes used as metric labels and span attributes.
const (
	ClassMediaNotFound = "media_not_found"
	ClassProbe         = "probe"
	ClassCapability    = "capability"
	ClassCapacity      = "capacity"
	ClassLaunch        = "launch"
	ClassCanceled      = "canceled"
	ClassInternal      = "internal"
)

// ErrorClass maps an error returned by the service to a stable class.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrMediaNotFound):
		return ClassMediaNotFound
	case errors.Is(err, model.ErrProbeFailed):
		return ClassProbe
	case errors.Is(err, model.ErrCapabilityUnavailable):
		return ClassCapability
	case errors.Is(err, model.ErrCapacityExceeded):
		return ClassCapacity
	case errors.Is(err, model.ErrProcessLaunch):
		return ClassLaunch
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	default:
		return ClassInternal
	}
}
