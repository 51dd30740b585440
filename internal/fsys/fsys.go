// Package fsys is the filesystem boundary of the build. Extraction, grouping
// and rendering stay pure; everything that touches disk goes through FS.
package fsys

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FS is the set of filesystem capabilities the pipeline needs.
type FS interface {
	ReadFile(name string) ([]byte, error)
	// WriteFile creates missing parent directories.
	WriteFile(name string, data []byte) error
	Stat(name string) (fs.FileInfo, error)
	WalkDir(root string, fn fs.WalkDirFunc) error
	MkdirAll(path string) error
	// CopyFile copies a single file, creating the destination directory.
	CopyFile(src, dst string) error
	CopyDir(src, dst string) error
	Rename(oldpath, newpath string) error
	Remove(name string) error
	RemoveAll(path string) error
}

// OS implements FS on the host filesystem.
type OS struct{}

var _ FS = OS{}

func (OS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (OS) WriteFile(name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (OS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (OS) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

func (OS) MkdirAll(path string) error {
	return os.MkdirAll(path, os.ModePerm)
}

func (OS) Rename(oldpath, newpath string) error {
	if err := os.MkdirAll(filepath.Dir(newpath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", newpath, err)
	}
	return os.Rename(oldpath, newpath)
}

func (OS) Remove(name string) error {
	return os.Remove(name)
}

func (OS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// CopyDir recursively copies the contents of src into dst.
func (o OS) CopyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		dstPath := filepath.Join(dst, relPath)

		if d.IsDir() {
			if err := os.MkdirAll(dstPath, os.ModePerm); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dstPath, err)
			}
			return nil
		}
		return o.CopyFile(path, dstPath)
	})
}

// CopyFile copies srcFile to dstFile, keeping the source permissions.
func (OS) CopyFile(srcFile, dstFile string) error {
	srcF, err := os.Open(srcFile)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", srcFile, err)
	}
	defer srcF.Close()

	srcInfo, err := srcF.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file %s: %w", srcFile, err)
	}

	if err := os.MkdirAll(filepath.Dir(dstFile), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create destination directory for %s: %w", dstFile, err)
	}

	dstF, err := os.OpenFile(dstFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dstFile, err)
	}

	if _, err := io.Copy(dstF, srcF); err != nil {
		dstF.Close()
		return fmt.Errorf("failed to copy data from %s to %s: %w", srcFile, dstFile, err)
	}
	if err := dstF.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dstFile, err)
	}
	return nil
}

// Exists reports whether name can be stat'ed.
func Exists(fsys FS, name string) bool {
	_, err := fsys.Stat(name)
	return err == nil
}
