package scraper

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so duplicates collapse to one form.
// It lowercases the scheme and host, removes default ports, strips the
// fragment, sorts query parameters, and trims a trailing slash.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	u.RawQuery = q.Encode()

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// ResolveCandidate parses candidate relative to origin, returning an
// absolute URL. Fragment-only and empty candidates resolve to origin
// itself and are rejected by the caller's dedup pass.
func ResolveCandidate(candidate, origin string) (*url.URL, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	u, err := base.Parse(candidate)
	if err != nil {
		return nil, fmt.Errorf("parse candidate url: %w", err)
	}
	return u, nil
}
