// SPDX-License-Identifier: MIT

package model

import "errors"

var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrMediaNotFound         = errors.New("media file not found")
	ErrCapacityExceeded      = errors.New("transcode capacity exceeded")
	ErrProcessLaunch         = errors.New("transcoder launch failed")
	ErrProbeFailed           = errors.New("media probe failed")
	ErrCapabilityUnavailable = errors.New("transcoder unavailable")
	ErrInvalidName           = errors.New("invalid path component")
)
