// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/streamarr/streamarr-server-sub001/internal/log"
)

// DefaultExtensions are indexed when a root names none.
var DefaultExtensions = []string{".mkv", ".mp4", ".m4v", ".mov", ".ts", ".webm", ".avi"}

// Writer is the catalog side the scanner fills.
type Writer interface {
	Upsert(ctx context.Context, it Item) error
}

// Root is one directory tree to index.
type Root struct {
	ID         string
	Path       string
	MaxDepth   int // 0 means unlimited
	Extensions []string
}

// ScanResult summarizes one root scan.
type ScanResult struct {
	RootID   string
	Indexed  int
	Skipped  int
	Errors   int
	Duration time.Duration
}

// Scan walks root and upserts every media file. Symlinks resolving outside
// the root are skipped. Per-file errors are counted, not fatal.
func Scan(ctx context.Context, w Writer, root Root, now func() time.Time) (ScanResult, error) {
	if now == nil {
		now = time.Now
	}
	logger := log.WithComponent("catalog").With().Str("root_id", root.ID).Logger()
	started := now()
	res := ScanResult{RootID: root.ID}

	resolvedRoot, err := filepath.EvalSymlinks(root.Path)
	if err != nil {
		return res, fmt.Errorf("resolve root %s: %w", root.ID, err)
	}
	resolvedRoot = filepath.Clean(resolvedRoot)
	exts := root.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	err = filepath.WalkDir(resolvedRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			res.Errors++
			logger.Warn().Err(walkErr).Str(log.FieldPath, path).Msg("catalog walk error")
			if d != nil && d.IsDir() && path != resolvedRoot {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(resolvedRoot, path)
		if err != nil {
			res.Errors++
			return nil
		}
		if d.IsDir() {
			if root.MaxDepth > 0 && path != resolvedRoot && strings.Count(rel, string(os.PathSeparator)) >= root.MaxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if !hasExtension(d.Name(), exts) {
			res.Skipped++
			return nil
		}

		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			res.Skipped++
			return nil
		}
		if r, err := filepath.Rel(resolvedRoot, target); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(os.PathSeparator)) {
			res.Skipped++
			logger.Warn().Str(log.FieldPath, rel).Msg("skipping file resolving outside library root")
			return nil
		}

		info, err := os.Stat(target)
		if err != nil || !info.Mode().IsRegular() {
			res.Skipped++
			return nil
		}

		it := Item{
			ID:        MediaID(root.ID, filepath.ToSlash(rel)),
			Path:      target,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
			AddedAt:   now(),
		}
		if err := w.Upsert(ctx, it); err != nil {
			res.Errors++
			logger.Warn().Err(err).Str(log.FieldPath, rel).Msg("catalog upsert failed")
			return nil
		}
		res.Indexed++
		return nil
	})
	res.Duration = now().Sub(started)
	if err != nil && !errors.Is(err, context.Canceled) {
		return res, err
	}

	logger.Info().
		Int("indexed", res.Indexed).
		Int("skipped", res.Skipped).
		Int("errors", res.Errors).
		Dur("duration", res.Duration).
		Msg("catalog scan finished")
	return res, err
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
