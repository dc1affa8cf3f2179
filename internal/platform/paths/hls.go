// SPDX-License-Identifier: MIT

package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// TargetDirName is the HLS root created under the data dir when none is configured.
	TargetDirName = "hls"
	// SessionsDirName holds one directory per streaming session.
	SessionsDirName = "sessions"
)

// ResolveHLSRoot returns the effective HLS root: the explicit root when set,
// otherwise <dataDir>/hls. The directory is created if missing.
func ResolveHLSRoot(dataDir, explicit string) (string, error) {
	root := normalizePath(explicit)
	if root == "" {
		dataDir = normalizePath(dataDir)
		if dataDir == "" {
			return "", fmt.Errorf("data dir cannot be empty")
		}
		root = filepath.Join(dataDir, TargetDirName)
	}
	if err := validateRoot(root); err != nil {
		return "", err
	}

	info, err := os.Stat(root)
	switch {
	case err == nil && !info.IsDir():
		return "", fmt.Errorf("hls root %q exists but is a file", root)
	case err == nil:
	case os.IsNotExist(err):
		if err := os.MkdirAll(root, 0o755); err != nil {
			return "", fmt.Errorf("create hls root: %w", err)
		}
	default:
		return "", fmt.Errorf("stat hls root: %w", err)
	}
	return root, nil
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

func validateRoot(path string) error {
	if path == "" || path == "." || path == string(filepath.Separator) {
		return fmt.Errorf("invalid hls root path: %q", path)
	}
	return nil
}
