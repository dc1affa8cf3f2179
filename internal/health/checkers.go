// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"os"
	"path/filepath"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// FuncChecker adapts a function.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

// NewFuncChecker wraps fn under name.
func NewFuncChecker(name string, fn func(ctx context.Context) CheckResult) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (c *FuncChecker) Name() string                          { return c.name }
func (c *FuncChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// CapabilitySource is the encoder capability provider.
type CapabilitySource interface {
	Get(ctx context.Context) model.HardwareEncodingCapability
}

// capabilityRefresher re-runs detection.
type capabilityRefresher interface {
	Refresh(ctx context.Context) model.HardwareEncodingCapability
}

// TranscoderChecker is unhealthy when ffmpeg does not run, degraded when it
// runs without hardware encoders. An unavailable result is re-detected when
// the source supports it, so installing ffmpeg recovers without a restart.
func TranscoderChecker(src CapabilitySource) Checker {
	return NewFuncChecker("transcoder", func(ctx context.Context) CheckResult {
		c := src.Get(ctx)
		if r, ok := src.(capabilityRefresher); ok && !c.Available {
			c = r.Refresh(ctx)
		}
		switch {
		case !c.Available:
			return CheckResult{Status: StatusUnhealthy, Error: "ffmpeg unavailable"}
		case !c.HardwareAvailable:
			return CheckResult{Status: StatusDegraded, Message: "software encoding only (" + c.Version + ")"}
		default:
			return CheckResult{Status: StatusHealthy, Message: c.Accelerator}
		}
	})
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingChecker is unhealthy when the ping fails.
func PingChecker(name string, p Pinger) Checker {
	return NewFuncChecker(name, func(ctx context.Context) CheckResult {
		if err := p.PingContext(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy}
	})
}

// WritableDirChecker is unhealthy when dir cannot take new files.
func WritableDirChecker(name, dir string) Checker {
	return NewFuncChecker(name, func(context.Context) CheckResult {
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: filepath.Clean(dir)}
		}
		_ = f.Close()
		_ = os.Remove(f.Name())
		return CheckResult{Status: StatusHealthy}
	})
}
