package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RejectSymlinkPath returns an error if path, or any existing directory on the
// way to it, is a symlink or reparse point.
func RejectSymlinkPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	current := filepath.VolumeName(abs) + string(os.PathSeparator)
	rest := strings.TrimLeft(abs[len(filepath.VolumeName(abs)):], string(os.PathSeparator))
	for _, part := range strings.Split(rest, string(os.PathSeparator)) {
		if part == "" {
			continue
		}
		current = filepath.Join(current, part)
		linked, err := isLink(current)
		if errors.Is(err, os.ErrNotExist) {
			// Nothing below a missing component can be a link yet.
			return nil
		}
		if err != nil {
			return err
		}
		if linked != "" {
			return fmt.Errorf("refusing to write to symlink path: %s (%s detected at %s)", path, linked, current)
		}
	}
	return nil
}

// RejectSymlinkPaths applies RejectSymlinkPath to every non-empty path.
func RejectSymlinkPaths(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := RejectSymlinkPath(p); err != nil {
			return err
		}
	}
	return nil
}

func isLink(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		return "", fmt.Errorf("failed to access path: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return "symlink", nil
	}
	reparse, err := isReparsePoint(path)
	if err != nil {
		return "", fmt.Errorf("failed to check reparse point: %w", err)
	}
	if reparse {
		return "reparse point", nil
	}
	return "", nil
}
