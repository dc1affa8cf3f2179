package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "720p"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "segment0.ts"), []byte("ts"), 0o600))
	// Points at the parent of root.
	require.NoError(t, os.Symlink("..", filepath.Join(root, "link_outside")))

	tests := []struct {
		name       string
		target     string
		wantErr    bool
		wantSuffix string
	}{
		{name: "existing file", target: "segment0.ts", wantSuffix: "segment0.ts"},
		{name: "missing file in existing subdir", target: "720p/segment3.ts", wantSuffix: filepath.Join("720p", "segment3.ts")},
		{name: "missing file in missing subdir", target: "480p/segment3.ts", wantSuffix: filepath.Join("480p", "segment3.ts")},
		{name: "dotdot", target: "../outside.ts", wantErr: true},
		{name: "nested dotdot", target: "720p/../../outside.ts", wantErr: true},
		{name: "absolute", target: "/etc/passwd", wantErr: true},
		{name: "backslash", target: `..\outside.ts`, wantErr: true},
		{name: "symlink escape", target: "link_outside/foo", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfineRelPath(root, tt.target)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, got, tt.wantSuffix)
		})
	}
}

func TestConfineRelPath_DotsInsideNameAllowed(t *testing.T) {
	root := t.TempDir()
	_, err := ConfineRelPath(root, "segment..1.ts")
	assert.NoError(t, err)
}

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "init.mp4")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	assert.NoError(t, IsRegularFile(file))
	assert.Error(t, IsRegularFile(dir))
	assert.Error(t, IsRegularFile(filepath.Join(dir, "missing")))
}
