// Package storage provides read-only access to the content root.
package storage

// Provider is the interface for content file access. Paths are
// slash-separated and relative to the content root.
type Provider interface {
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Glob returns the root-relative paths of files matching pattern.
	// Dotfiles and dot-directories only match wildcards when dot is true.
	Glob(pattern string, dot bool) ([]string, error)
}
