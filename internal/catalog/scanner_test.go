package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
}

func TestScan_IndexesMediaFiles(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(root, "Alien (1979)", "alien.mkv"))
	writeFile(t, filepath.Join(root, "Heat (1995)", "heat.MP4"))
	writeFile(t, filepath.Join(root, "Heat (1995)", "heat.nfo"))
	writeFile(t, filepath.Join(root, "deep", "a", "b", "c.mkv"))
	writeFile(t, filepath.Join(outside, "secret.mkv"))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.mkv"), filepath.Join(root, "escape.mkv")))

	mem := NewMemory()
	fixed := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	res, err := Scan(context.Background(), mem, Root{ID: "movies", Path: root, MaxDepth: 2}, func() time.Time { return fixed })
	require.NoError(t, err)

	assert.Equal(t, 2, res.Indexed)
	assert.Zero(t, res.Errors)

	p, err := mem.Lookup(context.Background(), MediaID("movies", "Alien (1979)/alien.mkv"))
	require.NoError(t, err)
	assert.Equal(t, "alien.mkv", filepath.Base(p))

	_, err = mem.Lookup(context.Background(), MediaID("movies", "escape.mkv"))
	assert.Error(t, err)
	_, err = mem.Lookup(context.Background(), MediaID("movies", "deep/a/b/c.mkv"))
	assert.Error(t, err)
}

func TestScan_IntoSQLiteIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mkv"))
	s, _ := openTestStore(t)
	ctx := context.Background()

	for range 2 {
		res, err := Scan(ctx, s, Root{ID: "r", Path: root}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Indexed)
	}
	items, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := Scan(context.Background(), NewMemory(), Root{ID: "x", Path: filepath.Join(t.TempDir(), "nope")}, nil)
	assert.Error(t, err)
}
