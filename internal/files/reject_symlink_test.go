package files

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// linkLayout builds tmp/realDir/nested, tmp/realDir/target.epub and the links
// tmp/book.epub -> target.epub and tmp/link -> realDir.
func linkLayout(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlink not permitted on Windows")
	}
	tmp := t.TempDir()
	realDir := filepath.Join(tmp, "realDir")
	if err := os.MkdirAll(filepath.Join(realDir, "nested"), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	target := filepath.Join(realDir, "target.epub")
	if err := os.WriteFile(target, []byte("original"), 0600); err != nil {
		t.Fatalf("write target: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(tmp, "book.epub")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(realDir, filepath.Join(tmp, "link")); err != nil {
		t.Fatalf("symlink dir: %v", err)
	}
	return tmp
}

func TestRejectSymlinkPath(t *testing.T) {
	tmp := linkLayout(t)
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"plain_file", filepath.Join(tmp, "realDir", "target.epub"), false},
		{"missing_file", filepath.Join(tmp, "realDir", "missing", "out.epub"), false},
		{"symlink_target", filepath.Join(tmp, "book.epub"), true},
		{"symlink_parent", filepath.Join(tmp, "link", "out.epub"), true},
		{"symlink_ancestor", filepath.Join(tmp, "link", "nested", "out.epub"), true},
		{"empty", " ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RejectSymlinkPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RejectSymlinkPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestRejectSymlinkPaths_SkipsEmpty(t *testing.T) {
	tmp := linkLayout(t)
	if err := RejectSymlinkPaths("", filepath.Join(tmp, "realDir", "a.epub")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RejectSymlinkPaths(filepath.Join(tmp, "realDir", "a.epub"), filepath.Join(tmp, "book.epub")); err == nil {
		t.Fatal("expected rejection of the second path")
	}
}

func TestAtomicWriteRejectsSymlinkTarget(t *testing.T) {
	tmp := linkLayout(t)
	if err := AtomicWrite(filepath.Join(tmp, "book.epub"), []byte("new"), 0600); err == nil {
		t.Fatalf("expected AtomicWrite to reject symlink")
	}
	data, err := os.ReadFile(filepath.Join(tmp, "realDir", "target.epub"))
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(data) != "original" {
		t.Fatalf("target modified via symlink: %s", string(data))
	}
}
