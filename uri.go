package skemac

import (
	"net/url"
	"strings"

	"github.com/go-openapi/jsonpointer"
)

// normalizeID strips a trailing "#" or "#/".
func normalizeID(id string) string {
	id = strings.TrimSuffix(id, "#/")
	return strings.TrimSuffix(id, "#")
}

// resolveURL resolves id against base.
func resolveURL(base, id string) string {
	id = normalizeID(id)
	if base == "" {
		return id
	}
	if id == "" {
		return base
	}
	b, err := url.Parse(base)
	if err != nil {
		return id
	}
	r, err := url.Parse(id)
	if err != nil {
		return id
	}
	if b.Opaque != "" && !r.IsAbs() {
		// urn:... bases only take fragments.
		if strings.HasPrefix(id, "#") {
			return fullPath(base) + id
		}
		return id
	}
	return normalizeID(b.ResolveReference(r).String())
}

// fullPath returns id without its fragment.
func fullPath(id string) string {
	if i := strings.IndexByte(id, '#'); i >= 0 {
		return id[:i]
	}
	return id
}

// fragmentOf returns the decoded fragment of id and whether one exists.
func fragmentOf(id string) (string, bool) {
	i := strings.IndexByte(id, '#')
	if i < 0 {
		return "", false
	}
	f := id[i+1:]
	if dec, err := url.PathUnescape(f); err == nil {
		f = dec
	}
	return f, true
}

// escapeFragment escapes a property name for use in a schema path fragment.
func escapeFragment(s string) string {
	return url.PathEscape(jsonpointer.Escape(s))
}

// pointerTokens splits a JSON pointer into unescaped tokens.
func pointerTokens(ptr string) ([]string, bool) {
	p, err := jsonpointer.New(ptr)
	if err != nil {
		return nil, false
	}
	return p.DecodedTokens(), true
}
