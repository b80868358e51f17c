// SPDX-License-Identifier: MIT

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
	require.NoError(t, os.Mkdir(filepath.Join(root, "stems"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stems", "mix-stem0.wav"), []byte("x"), 0o600))
	require.NoError(t, os.Symlink("..", filepath.Join(root, "escape")))

	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{"simple file", "stems/mix-stem0.wav", false},
		{"nonexistent under root", "stems/new.wav", false},
		{"absolute path", "/etc/passwd", true},
		{"parent traversal", "../outside", true},
		{"clean traversal", "stems/../../outside", true},
		{"backslash", `stems\..\..\outside`, true},
		{"symlink escape", "escape/secret", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ConfineRelPath(root, tc.target)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(got))
		})
	}
}

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	require.NoError(t, AtomicWrite(path, []byte(`{"ok":true}`), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	// Overwrite must replace, not append.
	require.NoError(t, AtomicWrite(path, []byte("v2"), 0o644))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestAtomicWriteMissingDir(t *testing.T) {
	err := AtomicWrite(filepath.Join(t.TempDir(), "missing", "f"), []byte("x"), 0o644)
	assert.Error(t, err)
}
