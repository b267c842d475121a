package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func memTree(t *testing.T, files map[string]string) *FS {
	t.Helper()
	mem := afero.NewMemMapFs()
	for p, content := range files {
		if err := afero.WriteFile(mem, "/"+p, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile %s: %v", p, err)
		}
	}
	return New(mem)
}

func TestRead(t *testing.T) {
	s := memTree(t, map[string]string{"posts/a.md": "# A"})
	got, err := s.Read("posts/a.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "# A" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.Read("posts/missing.md"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := memTree(t, nil)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow", "a/../../b.md"} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
	}
	if _, err := s.Glob("../*.md", true); err == nil {
		t.Error("expected error for escaping pattern")
	}
}

func TestGlob(t *testing.T) {
	s := memTree(t, map[string]string{
		"posts/a.md":           "a",
		"posts/b.md":           "b",
		"posts/.hidden.md":     "h",
		"posts/img.png":        "p",
		"posts/2024/c.md":      "c",
		"posts/.drafts/d.md":   "d",
		"pages/about/index.md": "i",
		"README.md":            "r",
	})

	tests := []struct {
		pattern string
		dot     bool
		want    []string
	}{
		{"posts/*.md", false, []string{"posts/a.md", "posts/b.md"}},
		{"posts/*.md", true, []string{"posts/.hidden.md", "posts/a.md", "posts/b.md"}},
		{"posts/**/*.md", false, []string{"posts/2024/c.md", "posts/a.md", "posts/b.md"}},
		{"posts/**/*.md", true, []string{"posts/.drafts/d.md", "posts/.hidden.md", "posts/2024/c.md", "posts/a.md", "posts/b.md"}},
		{"posts/.drafts/*.md", false, []string{"posts/.drafts/d.md"}},
		{"**/index.md", false, []string{"pages/about/index.md"}},
		{"README.md", false, []string{"README.md"}},
		{"./pages/*/index.md", false, []string{"pages/about/index.md"}},
		{"missing/**/*.md", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := s.Glob(tt.pattern, tt.dot)
			if err != nil {
				t.Fatalf("Glob: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("matches mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGlob_InvalidPattern(t *testing.T) {
	s := memTree(t, map[string]string{"a.md": "a"})
	if _, err := s.Glob("[", true); err == nil {
		t.Error("expected error for malformed pattern")
	}
	if _, err := s.Glob("  ", true); err == nil {
		t.Error("expected error for empty pattern")
	}
}

func TestNewFS_OnDisk(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "notes"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes", "n.md"), []byte("disk"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	got, err := s.Glob("notes/*.md", true)
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if diff := cmp.Diff([]string{"notes/n.md"}, got); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
	data, err := s.Read("notes/n.md")
	if err != nil || string(data) != "disk" {
		t.Errorf("Read = %q, %v", data, err)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFS(f); err == nil {
		t.Error("expected error when root is a file")
	}
}
