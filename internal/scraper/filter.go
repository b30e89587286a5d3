package scraper

import (
	"net/url"
	"strings"
)

// DefaultExcludedPatterns rejects link categories that never carry
// summarizable content. Evaluated in order, first match rejects.
var DefaultExcludedPatterns = []string{
	"login", "signin", "sign-in", "signup", "sign-up", "auth",
	"account", "profile",
	"cart", "checkout", "payment", "basket",
	"admin",
	"privacy", "terms", "legal", "cookie-policy",
	"logout", "password",
}

// DefaultExcludedExtensions rejects downloadable-file links.
var DefaultExcludedExtensions = []string{
	".pdf", ".zip", ".tar", ".gz", ".doc", ".docx", ".xls", ".xlsx",
	".ppt", ".pptx", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".mp3", ".mp4", ".avi", ".mov", ".exe", ".dmg", ".css", ".js",
}

// pathPatternBlocklist stores path/query substring patterns and
// extension suffixes derived from configuration.
type pathPatternBlocklist struct {
	substrings []string
	extensions []string
}

func newPathPatternBlocklist(patterns, extensions []string) *pathPatternBlocklist {
	matcher := &pathPatternBlocklist{}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		matcher.substrings = append(matcher.substrings, value)
	}
	for _, raw := range extensions {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		if !strings.HasPrefix(value, ".") {
			value = "." + value
		}
		matcher.extensions = append(matcher.extensions, value)
	}
	if len(matcher.substrings) == 0 && len(matcher.extensions) == 0 {
		return nil
	}
	return matcher
}

// Matches reports whether the path or query hits any configured pattern.
func (b *pathPatternBlocklist) Matches(path, query string) bool {
	if b == nil {
		return false
	}
	path = strings.ToLower(path)
	query = strings.ToLower(query)
	for _, ext := range b.extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	for _, pattern := range b.substrings {
		if strings.Contains(path, pattern) || strings.Contains(query, pattern) {
			return true
		}
	}
	return false
}

// URLFilter decides whether a discovered link is eligible for retrieval.
type URLFilter struct {
	blocklist *pathPatternBlocklist
}

// NewURLFilter builds a filter from configured exclusion lists. Empty
// lists fall back to the defaults.
func NewURLFilter(patterns, extensions []string) *URLFilter {
	if len(patterns) == 0 {
		patterns = DefaultExcludedPatterns
	}
	if len(extensions) == 0 {
		extensions = DefaultExcludedExtensions
	}
	return &URLFilter{
		blocklist: newPathPatternBlocklist(patterns, extensions),
	}
}

// IsEligible is a pure predicate: candidate must parse as an absolute
// or origin-relative HTTP(S) URL, share the origin's host, not be a
// fragment-only link, and miss every excluded pattern.
func (f *URLFilter) IsEligible(candidate, origin string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || strings.HasPrefix(candidate, "#") {
		return false
	}
	u, err := ResolveCandidate(candidate, origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Hostname(), originURL.Hostname()) {
		return false
	}
	return !f.blocklist.Matches(u.Path, u.RawQuery)
}

// FilterEligible applies IsEligible over candidates in discovery order,
// deduplicates by normalized form, and caps the result at limit
// (limit <= 0 means no cap). Returned entries are normalized.
func (f *URLFilter) FilterEligible(candidates []string, origin string, limit int) []string {
	var eligible []string
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if limit > 0 && len(eligible) >= limit {
			break
		}
		if !f.IsEligible(candidate, origin) {
			continue
		}
		u, err := ResolveCandidate(candidate, origin)
		if err != nil {
			continue
		}
		normalized, err := NormalizeURL(u.String())
		if err != nil {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		eligible = append(eligible, normalized)
	}
	return eligible
}
