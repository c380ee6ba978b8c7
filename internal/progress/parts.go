package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oukeidos/ebt/internal/files"
)

// DefaultPath returns the progress file used for an output package:
// out/book.epub is tracked in out/book_ebt_progress.json.
func DefaultPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
	return filepath.Join(dir, base+"_ebt_progress.json")
}

// SavePart stores a translated document and returns its output reference.
func (s *Store) SavePart(pkg, doc string, data []byte) (string, error) {
	if err := os.MkdirAll(s.partsDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create parts directory: %w", err)
	}
	path := filepath.Join(s.partsDir, partName(pkg, doc))
	if err := files.AtomicWrite(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to store document %s: %w", doc, err)
	}
	rel, err := filepath.Rel(filepath.Dir(s.path), path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// ReadPart loads a document stored by SavePart.
func (s *Store) ReadPart(ref string) ([]byte, error) {
	path, err := s.resolveRef(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// resolveRef turns an output reference into a path inside the parts directory.
func (s *Store) resolveRef(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("output reference is empty")
	}
	if filepath.IsAbs(ref) {
		return "", fmt.Errorf("output reference must be relative, not absolute: %s", ref)
	}
	path := filepath.Join(filepath.Dir(s.path), filepath.FromSlash(ref))
	rel, err := filepath.Rel(s.partsDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("output reference is outside the parts directory: %s", ref)
	}
	return path, nil
}

func partName(pkg, doc string) string {
	sum := sha256.Sum256([]byte(pkg + "\x00" + doc))
	return hex.EncodeToString(sum[:8]) + ".xhtml"
}

// HashFile returns a SHA-256 hash of the given file contents.
func HashFile(path string) ([32]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return [32]byte{}, err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// HashFileHex returns a sha256-prefixed hex string of the file contents.
// It is used as the package id.
func HashFileHex(path string) (string, error) {
	sum, err := HashFile(path)
	if err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
