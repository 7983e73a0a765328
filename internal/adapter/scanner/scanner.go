// Package scanner discovers raster tiles below a directory.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns match the raster formats the raster library can open.
var DefaultPatterns = []string{"**/*.nc", "**/*.nc4", "**/*.grd"}

// Scanner lists tile files matching a set of doublestar patterns.
type Scanner struct {
	patterns []string
}

// New creates a scanner. Patterns are matched case-insensitively against
// slash-separated paths relative to the scanned root. No patterns selects
// DefaultPatterns.
func New(patterns ...string) (*Scanner, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid tile pattern %q", p)
		}
		normalized = append(normalized, p)
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("no tile patterns")
	}
	return &Scanner{patterns: normalized}, nil
}

// ListFiles returns the matching files below root, sorted. A missing root
// yields an empty list.
func (s *Scanner) ListFiles(root string) ([]string, error) {
	all, err := ListFilesRecursive(root)
	if err != nil {
		return nil, err
	}
	matches := all[:0]
	for _, path := range all {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if s.match(strings.ToLower(filepath.ToSlash(rel))) {
			matches = append(matches, path)
		}
	}
	return matches, nil
}

// ListFiles is a one-shot New(patterns...).ListFiles(root).
func ListFiles(root string, patterns ...string) ([]string, error) {
	s, err := New(patterns...)
	if err != nil {
		return nil, err
	}
	return s.ListFiles(root)
}

func (s *Scanner) match(rel string) bool {
	for _, p := range s.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// ListFilesRecursive returns every regular file below root, sorted.
// A missing root yields an empty list.
func ListFilesRecursive(root string) ([]string, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
