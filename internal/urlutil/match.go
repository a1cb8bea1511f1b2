package urlutil

import (
	"net/url"
	"strings"
)

// MatchTarget reports whether an absolute href points at target.
//
// A target given as a full URL (http or https, any letter case) requires the
// same normalised host; when it has a path other than "/" the href path must
// be equal after trailing slashes are trimmed. A bare host target matches any
// href whose normalised host ends with it, so subdomains match. The suffix test
// is a plain string comparison: target "pl" matches "example.pl", and
// "ample.com" matches "example.com".
// Unparsable hrefs never match.
func MatchTarget(href, target string) bool {
	if href == "" {
		return false
	}
	link, err := url.Parse(href)
	if err != nil {
		return false
	}

	target = strings.TrimSpace(target)
	if hasHTTPScheme(target) {
		t, err := url.Parse(target)
		if err != nil {
			return false
		}
		if link.Host == "" || t.Host == "" || NormalizeHost(link.Host) != NormalizeHost(t.Host) {
			return false
		}
		targetPath := t.EscapedPath()
		if targetPath == "" || targetPath == "/" {
			return true
		}
		return strings.TrimRight(link.EscapedPath(), "/") == strings.TrimRight(targetPath, "/")
	}

	linkHost := ""
	if link.Host != "" {
		linkHost = NormalizeHost(link.Host)
	}
	return linkHost != "" && strings.HasSuffix(linkHost, NormalizeHost(target))
}
