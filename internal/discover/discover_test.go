package discover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsocialist/presentation-library-builder/internal/fsys"
	"github.com/itsocialist/presentation-library-builder/internal/model"
)

func touch(t *testing.T, root, rel string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, nil, 0o644))
}

func TestDocuments(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{
		"root.html",
		"a/one.html",
		"b/two.pdf",
		"b/deck.PPTX",
		"b/notes.txt",
		"b/assets/inner.html",
		"node_modules/pkg/readme.html",
		".Deep/hidden.html",
		"a/.draft.html",
		"bundle.zip",
	} {
		touch(t, root, rel)
	}

	s := Scanner{FS: fsys.OS{}, Root: root, IgnoreDirs: []string{"assets", "node_modules"}}
	entries, err := s.Documents()
	require.NoError(t, err)

	var rels []string
	for _, e := range entries {
		rels = append(rels, e.RelPath)
	}
	assert.Equal(t, []string{"a/one.html", "b/deck.PPTX", "b/two.pdf", "root.html"}, rels)
	assert.Equal(t, model.FormatPPTX, entries[1].Format)
	assert.Equal(t, filepath.Join(root, "a", "one.html"), entries[0].AbsPath)
}

func TestArchives(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "bundle.zip")
	touch(t, root, "a/Nested.ZIP")
	touch(t, root, "assets/skip.zip")
	touch(t, root, "a/one.html")

	s := Scanner{FS: fsys.OS{}, Root: root, IgnoreDirs: []string{"assets"}}
	archives, err := s.Archives()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a", "Nested.ZIP"),
		filepath.Join(root, "bundle.zip"),
	}, archives)
}

func TestDocuments_MissingRoot(t *testing.T) {
	s := Scanner{FS: fsys.OS{}, Root: filepath.Join(t.TempDir(), "missing")}
	_, err := s.Documents()
	require.Error(t, err)
}
