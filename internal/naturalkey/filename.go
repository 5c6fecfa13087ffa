package naturalkey

import (
	"net/url"
	"path"
)

// FilenameFromURL recovers a file's natural key from its CDN URL: the
// final path segment, with any query string (e.g. cache-busting version
// tokens) stripped — per the boundary case in §8.3, a URL with and without
// a version token must resolve to the same filename.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return path.Base(rawURL)
	}
	return path.Base(u.Path)
}
