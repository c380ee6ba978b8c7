package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
}

func TestSafePath(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		want     string
	}{
		{"free", nil, "book_ko.epub"},
		{"first_suffix", []string{"book_ko.epub"}, "book_ko_1.epub"},
		{"skips_taken", []string{"book_ko.epub", "book_ko_1.epub", "book_ko_2.epub"}, "book_ko_3.epub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, name := range tt.existing {
				touch(t, filepath.Join(dir, name))
			}
			path := filepath.Join(dir, "book_ko.epub")
			got, changed, err := SafePath(path)
			if err != nil {
				t.Fatalf("SafePath failed: %v", err)
			}
			if want := filepath.Join(dir, tt.want); got != want {
				t.Fatalf("SafePath() = %q, want %q", got, want)
			}
			if changed != (len(tt.existing) > 0) {
				t.Fatalf("changed = %v", changed)
			}
		})
	}
}

func TestSafePath_FallsBackToUniqueSuffix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.epub")
	touch(t, path)
	for i := 1; i <= maxNumberedSuffix; i++ {
		touch(t, filepath.Join(dir, fmt.Sprintf("book_%d.epub", i)))
	}
	got, changed, err := SafePath(path)
	if err != nil {
		t.Fatalf("SafePath failed: %v", err)
	}
	if !changed || !strings.HasSuffix(got, ".epub") || len(filepath.Base(got)) <= len("book_9.epub") {
		t.Fatalf("unexpected path %q", got)
	}
	if _, err := os.Stat(got); !os.IsNotExist(err) {
		t.Fatalf("returned path exists: %v", err)
	}
}

func TestAtomicWriteFunc_FailureKeepsDestination(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.epub")
	touch(t, path)

	err := AtomicWriteFunc(path, 0644, func(w io.Writer) error {
		if _, err := w.Write([]byte("partial")); err != nil {
			return err
		}
		return os.ErrInvalid
	})
	if err == nil {
		t.Fatal("expected error")
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "x" {
		t.Fatalf("destination changed: %q, %v", data, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %v", entries)
	}
}

func TestAtomicWrite_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parts", "a.xhtml")
	if err := AtomicWrite(path, []byte("<html/>"), 0600); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "<html/>" {
		t.Fatalf("read back %q, %v", data, err)
	}
}
