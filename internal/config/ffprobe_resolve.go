// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveFFprobeBin picks the ffprobe binary: the explicit setting, else the
// ffprobe next to an absolute ffmpeg path, else "ffprobe" from PATH.
func ResolveFFprobeBin(probeBin, ffmpegBin string) string {
	return resolveFFprobeBin(probeBin, ffmpegBin, os.Stat)
}

func resolveFFprobeBin(probeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	if p := strings.TrimSpace(probeBin); p != "" {
		return p
	}
	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if strings.ContainsRune(ffmpegBin, os.PathSeparator) && filepath.Base(ffmpegBin) == "ffmpeg" {
		candidate := filepath.Join(filepath.Dir(ffmpegBin), "ffprobe")
		if fi, err := stat(candidate); err == nil && !fi.IsDir() {
			return candidate
		}
	}
	return "ffprobe"
}
