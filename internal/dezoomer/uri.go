package dezoomer

import (
	"net/url"
	"path/filepath"
	"strings"
)

// IsRemote reports whether uri is fetched over HTTP rather than read from disk.
func IsRemote(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

// ResolveRelative resolves ref against the document base was read from.
// Absolute URLs and absolute paths are returned unchanged.
func ResolveRelative(base, ref string) string {
	if IsRemote(ref) || filepath.IsAbs(ref) {
		return ref
	}
	if IsRemote(base) {
		b, err := url.Parse(base)
		if err != nil {
			return ref
		}
		r, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return b.ResolveReference(r).String()
	}
	return filepath.Join(filepath.Dir(strings.TrimPrefix(base, "file://")), ref)
}
