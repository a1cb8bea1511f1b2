// Package dofollow decides whether links are followable by search engine crawlers.
package dofollow

import (
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blockingRel = map[string]struct{}{
	"nofollow":  {},
	"ugc":       {},
	"sponsored": {},
}

// RelTokens splits a rel attribute value into lowercase tokens.
func RelTokens(rel string) []string {
	fields := strings.Fields(rel)
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

// IsDofollow reports whether a link with the given rel tokens passes ranking
// credit. A page-level nofollow always wins over the anchor's own attributes.
func IsDofollow(relTokens []string, pageNofollow bool) bool {
	if pageNofollow {
		return false
	}
	for _, tok := range relTokens {
		if _, blocked := blockingRel[strings.ToLower(tok)]; blocked {
			return false
		}
	}
	return true
}

// MetaNofollow reports whether a robots or googlebot meta tag carries nofollow.
// The name attribute is matched as a case-insensitive substring.
func MetaNofollow(doc *goquery.Document) bool {
	if doc == nil {
		return false
	}
	found := false
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name := strings.ToLower(s.AttrOr("name", ""))
		if !strings.Contains(name, "robots") && !strings.Contains(name, "googlebot") {
			return true
		}
		if strings.Contains(strings.ToLower(s.AttrOr("content", "")), "nofollow") {
			found = true
			return false
		}
		return true
	})
	return found
}

// HeaderNofollow reports whether any X-Robots-Tag header value contains nofollow.
// Header names are compared case-insensitively so hand-built maps work too.
func HeaderNofollow(headers http.Header) bool {
	for key, values := range headers {
		if !strings.EqualFold(key, "X-Robots-Tag") {
			continue
		}
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), "nofollow") {
				return true
			}
		}
	}
	return false
}
