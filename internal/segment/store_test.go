package segment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

func newStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func writeSegment(t *testing.T, s *FSStore, sessionID, label, name, body string) {
	t.Helper()
	dir, err := s.SessionDir(sessionID, label)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestValidateName(t *testing.T) {
	valid := []string{"segment0.ts", "segment12.m4s", "init.mp4", "720p", "source"}
	for _, n := range valid {
		assert.NoError(t, ValidateName(n), n)
	}

	invalid := []string{"", ".", "..", "../segment0.ts", "a/b", `a\b`, "/etc/passwd", "..%2f", "seg\x00.ts"}
	for _, n := range invalid {
		err := ValidateName(n)
		if assert.Error(t, err, n) {
			assert.True(t, errors.Is(err, model.ErrInvalidName), n)
		}
	}
}

func TestIsMediaName(t *testing.T) {
	assert.True(t, IsMediaName("segment0.ts"))
	assert.True(t, IsMediaName("segment41.m4s"))
	assert.True(t, IsMediaName("init.mp4"))
	assert.False(t, IsMediaName("session.json"))
	assert.False(t, IsMediaName("segment0.ts.tmp"))
	assert.False(t, IsMediaName("stream.m3u8"))
}

func TestSessionDir(t *testing.T) {
	s := newStore(t)

	dir, err := s.SessionDir("abc", model.SingleRendition)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "abc"), dir)

	dir, err = s.SessionDir("abc", "720p")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "abc", "720p"), dir)

	_, err = s.SessionDir("../abc", "")
	assert.ErrorIs(t, err, model.ErrInvalidName)
	_, err = s.SessionDir("abc", "..")
	assert.ErrorIs(t, err, model.ErrInvalidName)
}

func TestReadSegment(t *testing.T) {
	s := newStore(t)
	writeSegment(t, s, "abc", "", "segment0.ts", "ts-bytes")
	writeSegment(t, s, "abc", "720p", "segment1.m4s", "m4s-bytes")

	data, err := s.ReadSegment("abc", "segment0.ts")
	require.NoError(t, err)
	assert.Equal(t, "ts-bytes", string(data))

	data, err = s.ReadSegment("abc", Join("720p", "segment1.m4s"))
	require.NoError(t, err)
	assert.Equal(t, "m4s-bytes", string(data))

	_, err = s.ReadSegment("abc", "segment9.ts")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ReadSegment("nope", "segment0.ts")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadSegment_Traversal(t *testing.T) {
	s := newStore(t)
	writeSegment(t, s, "abc", "", "segment0.ts", "x")

	for _, name := range []string{"../abc/segment0.ts", "720p/../../x", "a/b/c", `..\x`} {
		_, err := s.ReadSegment("abc", name)
		assert.ErrorIs(t, err, model.ErrInvalidName, name)
	}
}

func TestReadSegment_SymlinkEscape(t *testing.T) {
	s := newStore(t)
	outside := filepath.Join(t.TempDir(), "secret.ts")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	dir, err := s.SessionDir("abc", "")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "segment0.ts")))

	_, err = s.ReadSegment("abc", "segment0.ts")
	assert.ErrorIs(t, err, model.ErrInvalidName)
}

func TestWaitForSegment_AlreadyPresent(t *testing.T) {
	s := newStore(t)
	writeSegment(t, s, "abc", "", "segment0.ts", "x")

	ok, err := s.WaitForSegment(context.Background(), "abc", "segment0.ts", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWaitForSegment_AppearsViaRename(t *testing.T) {
	s := newStore(t)
	dir, err := s.SessionDir("abc", "720p")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	go func() {
		time.Sleep(50 * time.Millisecond)
		tmp := filepath.Join(dir, "segment3.m4s.tmp")
		_ = os.WriteFile(tmp, []byte("data"), 0o644)
		_ = os.Rename(tmp, filepath.Join(dir, "segment3.m4s"))
	}()

	ok, err := s.WaitForSegment(context.Background(), "abc", Join("720p", "segment3.m4s"), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWaitForSegment_TempFileDoesNotCount(t *testing.T) {
	s := newStore(t)
	dir, err := s.SessionDir("abc", "")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment0.ts.tmp"), []byte("partial"), 0o644))

	ok, err := s.WaitForSegment(context.Background(), "abc", "segment0.ts", 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWaitForSegment_Timeout(t *testing.T) {
	s := newStore(t)
	dir, err := s.SessionDir("abc", "")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	start := time.Now()
	ok, err := s.WaitForSegment(context.Background(), "abc", "segment5.ts", 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitForSegment_DeletedSessionStaysDeleted(t *testing.T) {
	s := newStore(t)
	writeSegment(t, s, "abc", "720p", "segment0.m4s", "a")
	require.NoError(t, s.DeleteSession("abc"))

	start := time.Now()
	ok, err := s.WaitForSegment(context.Background(), "abc", Join("720p", "segment1.m4s"), 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)

	dir, err := s.SessionDir("abc", "")
	require.NoError(t, err)
	assert.NoDirExists(t, dir)
}

func TestWaitForSegment_ContextCanceled(t *testing.T) {
	s := newStore(t)
	dir, err := s.SessionDir("abc", "")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := s.WaitForSegment(ctx, "abc", "segment5.ts", 5*time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForSegment_InvalidName(t *testing.T) {
	s := newStore(t)
	_, err := s.WaitForSegment(context.Background(), "abc", "../x", time.Second)
	assert.ErrorIs(t, err, model.ErrInvalidName)
}

func TestDeleteSession_RemovesAllVariants(t *testing.T) {
	s := newStore(t)
	writeSegment(t, s, "abc", "1080p", "segment0.m4s", "a")
	writeSegment(t, s, "abc", "720p", "segment0.m4s", "b")
	writeSegment(t, s, "other", "", "segment0.ts", "c")

	require.NoError(t, s.DeleteSession("abc"))

	_, err := s.ReadSegment("abc", Join("1080p", "segment0.m4s"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ReadSegment("abc", Join("720p", "segment0.m4s"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ReadSegment("other", "segment0.ts")
	assert.NoError(t, err, "other sessions are untouched")

	// Idempotent.
	assert.NoError(t, s.DeleteSession("abc"))
}

func TestMarkSession_RoundTripAndListing(t *testing.T) {
	s := newStore(t)
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkSession(Marker{SessionID: "abc", MediaFileID: "m1", CreatedAt: created}))

	m, err := s.ReadMarker("abc")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.MediaFileID)
	assert.True(t, created.Equal(m.CreatedAt))

	// Stray files and unsafe names are not sessions.
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "stray.txt"), []byte("x"), 0o644))

	dirs, err := s.ListSessions()
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "abc", dirs[0].SessionID)
	assert.Equal(t, "m1", dirs[0].MediaFileID)
}
