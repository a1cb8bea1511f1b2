package urlutil

import (
	"net/url"
	"strings"
)

// NormalizeHost returns the canonical form of a host used for link matching.
// The rules are:
// 1. Surrounding whitespace is trimmed and the value is lowercased.
// 2. If the value is an http(s) URL, its host (including any port) is used.
// 3. A leading "www." is stripped.
// Invalid input yields an empty string.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if hasHTTPScheme(host) {
		u, err := url.Parse(host)
		if err != nil {
			return ""
		}
		host = u.Host
	}
	return strings.TrimPrefix(host, "www.")
}

func hasHTTPScheme(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
