// SPDX-License-Identifier: MIT

package procgroup

import (
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/streamarr/streamarr-server-sub001/internal/metrics"
)

// QuitKey is what ffmpeg reads on stdin as "finish and exit".
const QuitKey = "q"

// Quit stops a process the way an operator would: write the quit key to its
// stdin and close it, wait up to grace for the process to exit (observed via
// waitCh, which the caller's Wait goroutine feeds), then SIGKILL the group.
// It always drains waitCh and returns the process' exit error.
// It is safe to call on nil commands (returns nil).
func Quit(cmd *exec.Cmd, stdin io.WriteCloser, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if stdin != nil {
		if _, err := io.WriteString(stdin, QuitKey); err == nil {
			metrics.IncProcTerminate("quit", "sent")
		} else {
			// Broken pipe: the process already closed stdin or exited.
			metrics.IncProcTerminate("quit", "error")
		}
		_ = stdin.Close()
	}

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-time.After(grace):
		if err := Kill(cmd, syscall.SIGKILL); err == nil {
			metrics.IncProcTerminate("SIGKILL", "sent")
		} else {
			metrics.IncProcTerminate("SIGKILL", "error")
		}

		err := <-waitCh
		if err == nil {
			metrics.IncProcWait("forced_exit0")
		} else {
			metrics.IncProcWait("forced_error")
		}
		return err
	}
}
