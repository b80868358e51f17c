// SPDX-License-Identifier: MIT

// Package fs provides filesystem helpers: path confinement against traversal
// and symlink escapes, and atomic durable file writes.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// ConfineRelPath ensures that joining root and relTarget results in a path
// that is physically underneath the resolved path of root. It protects
// against symlink traversal and backslash bypass. The target MUST be
// relative.
func ConfineRelPath(root, relTarget string) (string, error) {
	// Block backslashes to prevent OS-specific bypasses on non-Windows
	// systems or ambiguity in generic parsing.
	if strings.Contains(relTarget, "\\") {
		return "", fmt.Errorf("path contains backslash: %s", relTarget)
	}

	cleanRel := filepath.Clean(relTarget)
	if filepath.IsAbs(cleanRel) || strings.HasPrefix(cleanRel, "/") {
		return "", fmt.Errorf("target path must be relative: %s", relTarget)
	}

	// cleanRel handles "a/../b" -> "b", but if it starts with "..", it is
	// outside the root.
	if cleanRel == ".." || strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt: %s", relTarget)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}

	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		realRoot = absRoot
	}

	fullPath := filepath.Join(realRoot, cleanRel)
	return resolveAndCheck(realRoot, fullPath)
}

// resolveAndCheck resolves symlinks in fullPath as far as they exist and
// verifies the result stays under realRoot.
func resolveAndCheck(realRoot, fullPath string) (string, error) {
	resolved := fullPath
	if real, err := filepath.EvalSymlinks(fullPath); err == nil {
		resolved = real
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("resolve path: %w", err)
	} else {
		// Target does not exist yet; resolve the deepest existing parent so a
		// symlinked directory cannot smuggle the file outside the root.
		parent := filepath.Dir(fullPath)
		for parent != realRoot && parent != string(filepath.Separator) {
			if real, err := filepath.EvalSymlinks(parent); err == nil {
				resolved = filepath.Join(real, fullPath[len(parent):])
				break
			}
			parent = filepath.Dir(parent)
		}
	}

	rel, err := filepath.Rel(realRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root: %s", fullPath)
	}
	return resolved, nil
}

// AtomicWrite writes data to path atomically and durably: temp file, fsync,
// rename. The parent directory must exist.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(perm))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace file: %w", err)
	}
	return nil
}
