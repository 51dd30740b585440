// Package discover finds documents and archives under the documents root.
package discover

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/itsocialist/presentation-library-builder/internal/fsys"
	"github.com/itsocialist/presentation-library-builder/internal/model"
)

// Entry is a discovered document.
type Entry struct {
	AbsPath string
	// RelPath is slash-separated and relative to the documents root.
	RelPath string
	Format  model.Format
}

// Scanner walks the documents root, skipping dot-folders and the configured
// ignore list (asset and dependency folders).
type Scanner struct {
	FS         fsys.FS
	Root       string
	IgnoreDirs []string
}

func (s Scanner) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, ignored := range s.IgnoreDirs {
		if strings.EqualFold(name, ignored) {
			return true
		}
	}
	return false
}

func (s Scanner) walk(match func(path string, d fs.DirEntry) error) error {
	return s.FS.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path '%s' during walk: %w", path, err)
		}
		if d.IsDir() {
			if path != s.Root && s.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		return match(path, d)
	})
}

// Documents returns every markup, PDF and slide-deck file in lexical walk
// order.
func (s Scanner) Documents() ([]Entry, error) {
	var entries []Entry
	err := s.walk(func(path string, d fs.DirEntry) error {
		format, ok := model.FormatFromPath(d.Name())
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		entries = append(entries, Entry{
			AbsPath: path,
			RelPath: filepath.ToSlash(rel),
			Format:  format,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Archives returns every zip bundle under the root.
func (s Scanner) Archives() ([]string, error) {
	var archives []string
	err := s.walk(func(path string, d fs.DirEntry) error {
		if strings.EqualFold(filepath.Ext(d.Name()), ".zip") {
			archives = append(archives, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archives, nil
}
