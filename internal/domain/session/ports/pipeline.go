package ports

import (
	"context"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// TranscodeSupervisor defines the contract for controlling transcoder
// processes, keyed by session id and variant label.
// It is strictly an orchestration interface: Start, Stop, IsRunning.
type TranscodeSupervisor interface {
	// Start launches one variant process. Launch errors wrap model.ErrProcessLaunch.
	Start(ctx context.Context, job model.TranscodeJob) (model.TranscodeHandle, error)

	// Stop terminates every process of the session, gracefully first. It is
	// idempotent and returns once the processes are gone.
	Stop(sessionID string)

	// IsRunning reports liveness of one variant process.
	IsRunning(sessionID, label string) bool
}
