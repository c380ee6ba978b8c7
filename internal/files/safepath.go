package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxNumberedSuffix bounds the book_1.epub .. book_9.epub candidates tried
// before falling back to a unique id.
const maxNumberedSuffix = 9

// SafePath returns path when nothing exists there yet. Otherwise it returns
// the first free sibling named with a numeric suffix, or a time-ordered UUID
// suffix when those are taken too. changed reports whether path was replaced.
func SafePath(path string) (safe string, changed bool, err error) {
	if path == "" {
		return "", false, fmt.Errorf("path is empty")
	}
	free, err := isFree(path)
	if err != nil || free {
		return path, false, err
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; i <= maxNumberedSuffix; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		free, err := isFree(candidate)
		if err != nil {
			return "", false, err
		}
		if free {
			return candidate, true, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s_%s%s", stem, id, ext), true, nil
}

func isFree(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, os.ErrNotExist):
		return true, nil
	default:
		return false, err
	}
}
