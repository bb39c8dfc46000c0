package inspect

import (
	"net/url"
	"strings"
)

const dataScheme = "data:"

// DefaultPathMaxLength is the display length after which paths are truncated.
const DefaultPathMaxLength = 100

// ParsedURL is the domain/path split of a request URL.
type ParsedURL struct {
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// ParseURL splits raw into host and path. It never fails: data URIs report the
// "data:" marker and their media type, anything that is not an absolute URL
// comes back with an empty domain and the original string as path.
func ParseURL(raw string) ParsedURL {
	if strings.HasPrefix(raw, dataScheme) {
		head, _, _ := strings.Cut(raw, ";")
		return ParsedURL{Domain: dataScheme, Path: head[len(dataScheme):]}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return ParsedURL{Path: raw}
	}

	if u.Opaque != "" {
		return ParsedURL{Domain: strings.ToLower(u.Host), Path: u.Opaque}
	}

	path := u.EscapedPath()
	if path == "" && u.Host != "" {
		path = "/"
	}
	return ParsedURL{Domain: strings.ToLower(u.Host), Path: path}
}

// TruncatePath shortens path to max characters followed by "...".
func TruncatePath(path string, max int) string {
	if max <= 0 {
		max = DefaultPathMaxLength
	}
	runes := []rune(path)
	if len(runes) <= max {
		return path
	}
	return string(runes[:max]) + "..."
}
