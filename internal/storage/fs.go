package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FS implements Provider on top of an afero filesystem.
type FS struct {
	fs afero.Fs
}

// NewFS creates a provider rooted at the given directory on disk.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), abs)), nil
}

// New wraps an existing afero filesystem whose "/" is the content root.
func New(fs afero.Fs) *FS {
	return &FS{fs: fs}
}

// Fs exposes the underlying filesystem.
func (f *FS) Fs() afero.Fs {
	return f.fs
}

// name converts a root-relative path into the filesystem name and rejects
// anything that escapes the root (directory traversal).
func name(rel string) (string, error) {
	rel = filepath.ToSlash(rel)
	if path.IsAbs(rel) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	cleaned := path.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("storage: path escapes content root: %s", rel)
	}
	if cleaned == "." {
		return "/", nil
	}
	return "/" + cleaned, nil
}

// Read returns the raw bytes of a content file.
func (f *FS) Read(rel string) ([]byte, error) {
	n, err := name(rel)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(f.fs, n)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", rel, err)
	}
	return data, nil
}

// Glob expands pattern against the content root. `**` matches any number of
// path segments. A base directory that does not exist yields no matches.
func (f *FS) Glob(pattern string, dot bool) ([]string, error) {
	segments, err := splitPattern(pattern)
	if err != nil {
		return nil, err
	}

	base := staticBase(segments)
	baseName := "/" + strings.Join(base, "/")
	exists, err := afero.DirExists(f.fs, baseName)
	if err != nil {
		return nil, fmt.Errorf("storage: glob %s: %w", pattern, err)
	}
	if !exists {
		return nil, nil
	}

	var matches []string
	err = afero.Walk(f.fs, baseName, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if matchSegments(strings.Split(rel, "/"), segments, dot) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: glob %s: %w", pattern, err)
	}
	return matches, nil
}

func splitPattern(pattern string) ([]string, error) {
	p := strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(pattern)), "./")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil, fmt.Errorf("storage: empty glob pattern")
	}
	segments := strings.Split(p, "/")
	for _, s := range segments {
		if s == ".." {
			return nil, fmt.Errorf("storage: pattern escapes content root: %s", pattern)
		}
		if s == "**" {
			continue
		}
		if _, err := path.Match(s, ""); err != nil {
			return nil, fmt.Errorf("storage: invalid glob pattern %s: %w", pattern, err)
		}
	}
	return segments, nil
}

// staticBase returns the leading literal directory segments of a pattern.
func staticBase(segments []string) []string {
	var base []string
	for _, s := range segments[:len(segments)-1] {
		if s == "**" || strings.ContainsAny(s, `*?[\`) {
			break
		}
		base = append(base, s)
	}
	return base
}

// matchSegments matches path segments against pattern segments.
func matchSegments(parts, pattern []string, dot bool) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		if matchSegments(parts, pattern[1:], dot) {
			return true
		}
		if len(parts) == 0 || hidden(parts[0], "", dot) {
			return false
		}
		return matchSegments(parts[1:], pattern, dot)
	}
	if len(parts) == 0 {
		return false
	}
	if hidden(parts[0], pattern[0], dot) {
		return false
	}
	ok, err := path.Match(pattern[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(parts[1:], pattern[1:], dot)
}

// hidden reports whether a dot-prefixed segment must be excluded because
// dotfile matching is off and the pattern does not name it explicitly.
func hidden(segment, pattern string, dot bool) bool {
	return !dot && strings.HasPrefix(segment, ".") && !strings.HasPrefix(pattern, ".")
}
