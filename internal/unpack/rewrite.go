package unpack

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// referenceAttrs hold a single URL.
var referenceAttrs = map[string]bool{
	"src":             true,
	"href":            true,
	"poster":          true,
	"data-src":        true,
	"data-background": true,
}

var cssURL = regexp.MustCompile(`url\(\s*(['"]?)([^'")\s]+)(['"]?)\s*\)`)

// RewriteReferences walks the markup token stream and points references to
// known assets at their new location. assets maps an asset file name to its
// replacement path. Only attribute values and CSS url() tokens are
// inspected; text, comments and scripts pass through untouched. Tags that are
// not rewritten keep their original bytes.
func RewriteReferences(src []byte, assets map[string]string) ([]byte, int, error) {
	z := html.NewTokenizer(bytes.NewReader(src))
	var out bytes.Buffer
	out.Grow(len(src))
	rewritten := 0
	inStyle := false

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return out.Bytes(), rewritten, nil
			}
			return nil, rewritten, z.Err()
		}

		raw := append([]byte(nil), z.Raw()...)
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			changed := 0
			for i, a := range tok.Attr {
				if a.Namespace != "" {
					continue
				}
				var n int
				switch {
				case referenceAttrs[a.Key]:
					tok.Attr[i].Val, n = rewriteRef(a.Val, assets)
				case a.Key == "srcset":
					tok.Attr[i].Val, n = rewriteSrcset(a.Val, assets)
				case a.Key == "style":
					tok.Attr[i].Val, n = rewriteCSS(a.Val, assets)
				}
				changed += n
			}
			if changed > 0 {
				out.WriteString(tok.String())
				rewritten += changed
			} else {
				out.Write(raw)
			}
			if tt == html.StartTagToken && tok.DataAtom == atom.Style {
				inStyle = true
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.Style {
				inStyle = false
			}
			out.Write(raw)
		case html.TextToken:
			if inStyle {
				css, n := rewriteCSS(string(raw), assets)
				rewritten += n
				out.WriteString(css)
			} else {
				out.Write(raw)
			}
		default:
			out.Write(raw)
		}
	}
}

// rewriteRef replaces a relative reference whose last path segment is a
// known asset name, keeping any query or fragment.
func rewriteRef(ref string, assets map[string]string) (string, int) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "/") {
		return ref, 0
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Opaque != "" {
		return ref, 0
	}
	target, ok := assets[path.Base(u.Path)]
	if !ok || u.Path == "" {
		return ref, 0
	}

	var suffix strings.Builder
	if u.RawQuery != "" {
		suffix.WriteString("?")
		suffix.WriteString(u.RawQuery)
	}
	if u.Fragment != "" {
		suffix.WriteString("#")
		suffix.WriteString(u.EscapedFragment())
	}
	if target+suffix.String() == trimmed {
		return ref, 0
	}
	return target + suffix.String(), 1
}

func rewriteSrcset(val string, assets map[string]string) (string, int) {
	candidates := strings.Split(val, ",")
	total := 0
	for i, c := range candidates {
		fields := strings.Fields(c)
		if len(fields) == 0 {
			continue
		}
		ref, n := rewriteRef(fields[0], assets)
		if n == 0 {
			continue
		}
		fields[0] = ref
		candidates[i] = strings.Join(fields, " ")
		total += n
	}
	if total == 0 {
		return val, 0
	}
	for i := range candidates {
		candidates[i] = strings.TrimSpace(candidates[i])
	}
	return strings.Join(candidates, ", "), total
}

func rewriteCSS(css string, assets map[string]string) (string, int) {
	total := 0
	out := cssURL.ReplaceAllStringFunc(css, func(m string) string {
		sub := cssURL.FindStringSubmatch(m)
		ref, n := rewriteRef(sub[2], assets)
		if n == 0 {
			return m
		}
		total += n
		return "url(" + sub[1] + ref + sub[3] + ")"
	})
	return out, total
}
