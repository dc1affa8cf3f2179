// SPDX-License-Identifier: MIT

// Package procgroup starts transcoder processes in their own process group
// and tears the whole group down again.
package procgroup

import "os/exec"

// Set configures the command to start in a new process group so Kill can
// reach ffmpeg's children too.
func Set(cmd *exec.Cmd) {
	set(cmd)
}
