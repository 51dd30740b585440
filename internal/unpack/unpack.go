// Package unpack expands zip bundles dropped into the documents root into
// the canonical layout: documents beside the archive, markup assets under
// the output tree.
package unpack

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/itsocialist/presentation-library-builder/internal/discover"
	"github.com/itsocialist/presentation-library-builder/internal/fsys"
	"github.com/itsocialist/presentation-library-builder/internal/model"
)

// ErrArchive marks a bundle that could not be expanded or relocated.
var ErrArchive = errors.New("archive unpack failed")

// AssetDirName is the folder, beside a published document, holding the
// per-document asset folders.
const AssetDirName = "assets"

var assetExts = map[string]bool{}

func init() {
	for _, ext := range strings.Fields(`
		.png .jpg .jpeg .gif .svg .webp .avif .ico .bmp
		.css .js .mjs .json
		.woff .woff2 .ttf .otf .eot
		.mp4 .webm .ogg .mp3 .wav .m4a .mov`) {
		assetExts[ext] = true
	}
}

// IsAsset reports whether a file name has an asset extension.
func IsAsset(name string) bool {
	return assetExts[strings.ToLower(filepath.Ext(name))]
}

// Unpacker expands every archive under Scanner.Root.
type Unpacker struct {
	FS      fsys.FS
	Scanner discover.Scanner
	// PublishRoot mirrors the documents root in the output tree; asset
	// folders are created beneath it.
	PublishRoot string
	Log         *zap.Logger
}

// Unpack processes all archives and returns how many were expanded. The
// first failure aborts the run.
func (u *Unpacker) Unpack(ctx context.Context) (int, error) {
	archives, err := u.Scanner.Archives()
	if err != nil {
		return 0, fmt.Errorf("%w: scan: %v", ErrArchive, err)
	}
	if len(archives) == 0 {
		return 0, nil
	}
	u.Log.Info("found archives to extract", zap.Int("count", len(archives)))

	for i, archive := range archives {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := u.unpackOne(archive); err != nil {
			return i, fmt.Errorf("%w: %s: %v", ErrArchive, filepath.Base(archive), err)
		}
	}
	return len(archives), nil
}

func (u *Unpacker) unpackOne(archive string) error {
	u.Log.Info("extracting", zap.String("archive", filepath.Base(archive)))

	dir := filepath.Dir(archive)
	base := strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive))
	scratch := filepath.Join(dir, "."+base+".unpack")

	if err := u.FS.RemoveAll(scratch); err != nil {
		return fmt.Errorf("failed to clear scratch directory: %w", err)
	}
	if err := u.extract(archive, scratch); err != nil {
		_ = u.FS.RemoveAll(scratch)
		return err
	}

	if err := u.relocate(archive, scratch); err != nil {
		_ = u.FS.RemoveAll(scratch)
		return err
	}

	if err := u.FS.RemoveAll(scratch); err != nil {
		return fmt.Errorf("failed to remove scratch directory: %w", err)
	}
	if err := u.FS.Remove(archive); err != nil {
		return fmt.Errorf("failed to remove archive: %w", err)
	}
	u.Log.Info("cleaned up", zap.String("archive", filepath.Base(archive)))
	return nil
}

func (u *Unpacker) extract(archive, scratch string) error {
	raw, err := u.FS.ReadFile(archive)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	if err := u.FS.MkdirAll(scratch); err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}

	for _, f := range zr.File {
		name, err := entryPath(f.Name)
		if err != nil {
			return err
		}
		if name == "" || f.FileInfo().IsDir() {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		if err := u.FS.WriteFile(filepath.Join(scratch, filepath.FromSlash(name)), data); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return nil
}

// entryPath validates a zip entry name and returns it cleaned and
// slash-separated. Entries that would land outside the scratch directory are
// rejected.
func entryPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") || (len(name) > 1 && name[1] == ':') {
		return "", fmt.Errorf("archive entry %q has an absolute path", name)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("archive entry %q escapes the extraction directory", name)
	}
	if clean == "." {
		return "", nil
	}
	return clean, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (u *Unpacker) relocate(archive, scratch string) error {
	var docs, assets []string
	err := u.FS.WalkDir(scratch, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != scratch && (d.Name() == "__MACOSX" || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if _, ok := model.FormatFromPath(d.Name()); ok {
			docs = append(docs, p)
		} else if IsAsset(d.Name()) {
			assets = append(assets, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan extracted files: %w", err)
	}
	sort.Strings(docs)
	sort.Strings(assets)

	relDir, err := filepath.Rel(u.Scanner.Root, filepath.Dir(archive))
	if err != nil {
		return fmt.Errorf("failed to locate archive: %w", err)
	}
	destDir := filepath.Dir(archive)
	if err := u.checkCollisions(scratch, destDir, docs); err != nil {
		return err
	}

	for _, doc := range docs {
		docName := filepath.Base(doc)
		format, _ := model.FormatFromPath(docName)
		if format != model.FormatHTML {
			if err := u.FS.Rename(doc, filepath.Join(destDir, docName)); err != nil {
				return fmt.Errorf("failed to move %s: %w", docName, err)
			}
			u.Log.Info("extracted document", zap.String("document", docName))
			continue
		}

		docBase := strings.TrimSuffix(docName, filepath.Ext(docName))
		assetDir := filepath.Join(u.PublishRoot, relDir, AssetDirName, docBase)

		targets := make(map[string]string, len(assets))
		for _, asset := range assets {
			name := filepath.Base(asset)
			if err := u.FS.CopyFile(asset, filepath.Join(assetDir, name)); err != nil {
				return fmt.Errorf("failed to copy asset %s: %w", name, err)
			}
			targets[name] = assetURL(docBase, name)
		}

		content, err := u.FS.ReadFile(doc)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", docName, err)
		}
		updated, n, err := RewriteReferences(content, targets)
		if err != nil {
			return fmt.Errorf("failed to rewrite %s: %w", docName, err)
		}
		if err := u.FS.WriteFile(filepath.Join(destDir, docName), updated); err != nil {
			return fmt.Errorf("failed to write %s: %w", docName, err)
		}
		u.Log.Info("extracted document",
			zap.String("document", docName),
			zap.Int("assets", len(assets)),
			zap.Int("references", n))
	}
	return nil
}

// checkCollisions rejects a bundle before anything is written when two of
// its documents flatten to the same name, or when one would replace a file
// already beside the archive.
func (u *Unpacker) checkCollisions(scratch, destDir string, docs []string) error {
	seen := make(map[string]string, len(docs))
	for _, doc := range docs {
		rel, _ := filepath.Rel(scratch, doc)
		name := filepath.Base(doc)
		key := strings.ToLower(name)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("documents %s and %s would both be extracted as %s",
				filepath.ToSlash(prev), filepath.ToSlash(rel), name)
		}
		seen[key] = rel
		if fsys.Exists(u.FS, filepath.Join(destDir, name)) {
			return fmt.Errorf("document %s would replace existing %s", filepath.ToSlash(rel), name)
		}
	}
	return nil
}

// assetURL is the document-relative reference to a relocated asset.
func assetURL(docBase, name string) string {
	return path.Join(AssetDirName, url.PathEscape(docBase), url.PathEscape(name))
}
