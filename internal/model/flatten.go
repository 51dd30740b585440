package model

import (
	"path"
	"strings"
)

// ThumbnailExt is the extension of every generated thumbnail.
const ThumbnailExt = ".png"

// DocumentID flattens a relative document path into a single file-name-safe
// stem. Inside the extension-less path "_" is written "_-" and "/" is written
// "__"; an extension other than ".html" is kept as "_.<ext>" and a missing
// one is marked "_~". Every "_" in
// the output starts a two-character escape, so the mapping decodes
// unambiguously and distinct paths never share an ID.
func DocumentID(rel string) string {
	rel = strings.TrimPrefix(path.Clean(strings.ReplaceAll(rel, "\\", "/")), "/")
	ext := path.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)

	var b strings.Builder
	b.Grow(len(rel) + 8)
	for i := 0; i < len(stem); i++ {
		switch c := stem[i]; c {
		case '_':
			b.WriteString("_-")
		case '/':
			b.WriteString("__")
		default:
			b.WriteByte(c)
		}
	}
	switch ext {
	case ".html":
	case "":
		b.WriteString("_~")
	default:
		b.WriteString("_.")
		b.WriteString(ext[1:])
	}
	return b.String()
}

// Flatten returns the thumbnail file name for a relative document path.
func Flatten(rel string) string {
	return DocumentID(rel) + ThumbnailExt
}
