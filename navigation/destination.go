package navigation

import (
	"net/url"
	"strings"
)

type Kind int

const (
	KindNone Kind = iota
	KindInternal
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindExternal:
		return "external"
	default:
		return "none"
	}
}

// Destination is a resolved redirect target. The HTTP shell decides how to perform it.
type Destination struct {
	Kind Kind
	// Path is set for internal destinations and may carry a query string.
	Path string
	// URL is set for external destinations.
	URL string
}

var None = Destination{}

func Internal(path string) Destination {
	return Destination{Kind: KindInternal, Path: path}
}

func External(u string) Destination {
	return Destination{Kind: KindExternal, URL: u}
}

func (d Destination) IsNone() bool {
	return d.Kind == KindNone
}

// Location returns the value for a Location header.
func (d Destination) Location() string {
	switch d.Kind {
	case KindInternal:
		return d.Path
	case KindExternal:
		return d.URL
	}
	return ""
}

func (d Destination) String() string {
	if d.IsNone() {
		return "none"
	}
	return d.Kind.String() + ":" + d.Location()
}

// WithQuery returns an internal destination with key=value appended to its query.
// Empty values are skipped.
func WithQuery(path string, pairs ...string) Destination {
	q := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			q.Set(pairs[i], pairs[i+1])
		}
	}
	if len(q) == 0 {
		return Internal(path)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return Internal(path + sep + q.Encode())
}
