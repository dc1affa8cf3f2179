// SPDX-License-Identifier: MIT

// Package segment owns the on-disk HLS output of streaming sessions.
//
// Layout: <root>/sessions/<sessionID>/[<variant>/]segmentN.ext, plus a
// session.json marker per session directory.
package segment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
	"github.com/streamarr/streamarr-server-sub001/internal/log"
	"github.com/streamarr/streamarr-server-sub001/internal/metrics"
	platformfs "github.com/streamarr/streamarr-server-sub001/internal/platform/fs"
	"github.com/streamarr/streamarr-server-sub001/internal/platform/paths"
)

// MarkerFile attributes a session directory to its session.
const MarkerFile = "session.json"

// ErrNotFound is returned when a segment does not exist (yet).
var ErrNotFound = errors.New("segment not found")

var mediaNameRe = regexp.MustCompile(`^(segment[0-9]+\.(ts|m4s)|init\.mp4)$`)

// Store is the contract the streaming service depends on. Names are either a
// bare segment file ("segment3.ts") or variant scoped ("720p/segment3.m4s").
type Store interface {
	ReadSegment(sessionID, name string) ([]byte, error)
	WaitForSegment(ctx context.Context, sessionID, name string, timeout time.Duration) (bool, error)
	DeleteSession(sessionID string) error
	SessionDir(sessionID, label string) (string, error)
}

// Marker is the content of session.json.
type Marker struct {
	SessionID   string    `json:"sessionId"`
	MediaFileID string    `json:"mediaFileId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DirInfo describes a session directory found on disk. MediaFileID is empty
// when the directory has no readable marker.
type DirInfo struct {
	SessionID   string
	MediaFileID string
	ModTime     time.Time
}

// FSStore implements Store on the local filesystem.
type FSStore struct {
	root string
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates a store rooted at hlsRoot. The sessions directory is
// created if missing.
func NewFSStore(hlsRoot string) (*FSStore, error) {
	root := filepath.Join(hlsRoot, paths.SessionsDirName)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Root returns the sessions directory.
func (s *FSStore) Root() string { return s.root }

// ValidateName rejects a single path component that could escape its
// directory.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", model.ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q", model.ErrInvalidName, name)
	case filepath.IsAbs(name), strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q", model.ErrInvalidName, name)
	}
	return nil
}

// IsMediaName reports whether name is something a transcoder produces.
func IsMediaName(name string) bool {
	return mediaNameRe.MatchString(name)
}

// Join builds a variant scoped segment name.
func Join(label, name string) string {
	if label == model.SingleRendition {
		return name
	}
	return label + "/" + name
}

func (s *FSStore) sessionRoot(sessionID string) (string, error) {
	if !model.IsSafeSessionID(sessionID) {
		return "", fmt.Errorf("%w: session id %q", model.ErrInvalidName, sessionID)
	}
	return filepath.Join(s.root, sessionID), nil
}

// SessionDir returns the output directory of a session variant.
func (s *FSStore) SessionDir(sessionID, label string) (string, error) {
	dir, err := s.sessionRoot(sessionID)
	if err != nil {
		return "", err
	}
	if label == model.SingleRendition {
		return dir, nil
	}
	if err := ValidateName(label); err != nil {
		return "", err
	}
	return filepath.Join(dir, label), nil
}

// resolve validates name and confines it to the session directory.
func (s *FSStore) resolve(sessionID, name string) (string, error) {
	dir, err := s.sessionRoot(sessionID)
	if err != nil {
		return "", err
	}
	parts := strings.Split(name, "/")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidName, name)
	}
	for _, p := range parts {
		if err := ValidateName(p); err != nil {
			return "", err
		}
	}
	path, err := platformfs.ConfineRelPath(s.root, filepath.Join(filepath.Base(dir), filepath.Join(parts...)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", model.ErrInvalidName, err)
	}
	return path, nil
}

// ReadSegment returns the segment bytes or ErrNotFound.
func (s *FSStore) ReadSegment(sessionID, name string) ([]byte, error) {
	path, err := s.resolve(sessionID, name)
	if err != nil {
		return nil, err
	}
	if err := platformfs.IsRegularFile(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- confined above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read segment: %w", err)
	}
	return data, nil
}

func present(path string) bool {
	return platformfs.IsRegularFile(path) == nil
}

// WaitForSegment blocks until the finished segment exists, the timeout
// elapses (false, nil) or ctx is done. A session directory that does not
// exist reports (false, nil) at once. ffmpeg writes <name>.tmp and renames,
// so a visible final name is a complete segment.
func (s *FSStore) WaitForSegment(ctx context.Context, sessionID, name string, timeout time.Duration) (bool, error) {
	path, err := s.resolve(sessionID, name)
	if err != nil {
		return false, err
	}
	if present(path) {
		metrics.RecordSegmentWait("hit")
		return true, nil
	}

	// The supervisor creates the directory before ffmpeg starts, so a missing
	// one belongs to a torn down session and must not be recreated.
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			metrics.RecordSegmentWait("removed")
			return false, nil
		}
		return false, fmt.Errorf("stat segment dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return false, fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()
	if err := watcher.Add(dir); err != nil {
		return false, fmt.Errorf("watch directory %s: %w", dir, err)
	}

	// Re-check after the watch is armed.
	if present(path) {
		metrics.RecordSegmentWait("hit")
		return true, nil
	}

	target := filepath.Base(path)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			metrics.RecordSegmentWait("canceled")
			return false, ctx.Err()
		case <-timer.C:
			metrics.RecordSegmentWait("timeout")
			return false, nil
		case event, ok := <-watcher.Events:
			if !ok {
				return false, fmt.Errorf("watcher channel closed")
			}
			if event.Name == dir && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				// Session torn down underneath us.
				metrics.RecordSegmentWait("removed")
				return false, nil
			}
			if filepath.Base(event.Name) == target && event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) != 0 {
				if present(path) {
					metrics.RecordSegmentWait("ready")
					return true, nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return false, fmt.Errorf("watcher error channel closed")
			}
			logger := log.WithComponent("segment")
			logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("fsnotify watcher error")
		}
	}
}

// DeleteSession removes every file of every variant of the session.
// Missing directories are not an error.
func (s *FSStore) DeleteSession(sessionID string) error {
	dir, err := s.sessionRoot(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete session dir: %w", err)
	}
	return nil
}

// MarkSession atomically writes the session marker into the session dir.
func (s *FSStore) MarkSession(m Marker) error {
	dir, err := s.sessionRoot(m.SessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(filepath.Join(dir, MarkerFile))
	if err != nil {
		return fmt.Errorf("create pending marker: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit marker: %w", err)
	}
	return nil
}

// ReadMarker reads the marker of a session directory.
func (s *FSStore) ReadMarker(sessionID string) (Marker, error) {
	var m Marker
	dir, err := s.sessionRoot(sessionID)
	if err != nil {
		return m, err
	}
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile)) // #nosec G304
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode marker: %w", err)
	}
	return m, nil
}

// ListSessions returns the session directories present on disk.
func (s *FSStore) ListSessions() ([]DirInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions dir: %w", err)
	}
	out := make([]DirInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !model.IsSafeSessionID(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		d := DirInfo{SessionID: e.Name(), ModTime: info.ModTime()}
		if m, err := s.ReadMarker(e.Name()); err == nil {
			d.MediaFileID = m.MediaFileID
		}
		out = append(out, d)
	}
	return out, nil
}
