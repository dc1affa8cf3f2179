// SPDX-License-Identifier: MIT

// Package fs confines client-supplied names to a directory tree.
package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a target resolves outside its root.
var ErrOutsideRoot = errors.New("path escapes root")

// ConfineRelPath joins root and relTarget and verifies that the result,
// after resolving symlinks, is physically underneath root. relTarget MUST
// be relative. Backslashes are rejected on every platform.
func ConfineRelPath(root, relTarget string) (string, error) {
	if strings.Contains(relTarget, "\\") {
		return "", fmt.Errorf("%w: backslash in %q", ErrOutsideRoot, relTarget)
	}

	cleanRel := filepath.Clean(relTarget)
	if filepath.IsAbs(cleanRel) || strings.HasPrefix(cleanRel, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrOutsideRoot, relTarget)
	}
	if escapes(cleanRel) {
		return "", fmt.Errorf("%w: traversal in %q", ErrOutsideRoot, relTarget)
	}

	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	return checkInside(realRoot, filepath.Join(realRoot, cleanRel))
}

// IsRegularFile returns an error unless path exists and is a regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		return abs, nil
	}
	return real, nil
}

// checkInside resolves symlinks of fullPath (or of its parent when the file
// does not exist yet) and verifies the result stays under realRoot.
func checkInside(realRoot, fullPath string) (string, error) {
	var realPath string
	if _, err := os.Lstat(fullPath); err == nil {
		rp, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", fullPath, err)
		}
		realPath = rp
	} else {
		dir := filepath.Dir(fullPath)
		rp, err := filepath.EvalSymlinks(dir)
		switch {
		case err == nil:
			realPath = filepath.Join(rp, filepath.Base(fullPath))
		case os.IsNotExist(err):
			// Nothing on disk to follow; the lexical check below decides.
			realPath = fullPath
		default:
			return "", fmt.Errorf("resolve parent %s: %w", dir, err)
		}
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	if escapes(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, realPath)
	}
	return realPath, nil
}
