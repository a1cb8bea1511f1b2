// Package analyzer turns a fetched page into a dofollow CheckResult.
package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"dofollow-checker/internal/dofollow"
	"dofollow-checker/internal/fetcher"
	"dofollow-checker/internal/urlutil"
	"dofollow-checker/pkg/types"
)

const (
	// NoteNonHTML is recorded for error statuses and responses that are not markup.
	NoteNonHTML = "non-HTML or HTTP error"
	// NoteRobotsDisallowed is appended when robots.txt disallows the page URL.
	NoteRobotsDisallowed = "robots.txt disallows this URL"

	maxExamples      = 3
	exampleSeparator = "; "
)

// RobotsChecker reports whether robots.txt permits a URL.
type RobotsChecker interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// Options configures an Analyzer.
type Options struct {
	// Robots, when set, annotates results for pages robots.txt disallows.
	Robots RobotsChecker
	Logger *slog.Logger
}

// Analyzer fetches a page and evaluates its links against a target.
type Analyzer struct {
	fetcher fetcher.Fetcher
	robots  RobotsChecker
	logger  *slog.Logger
}

// New builds an Analyzer around the given fetcher.
func New(f fetcher.Fetcher, opts Options) *Analyzer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{fetcher: f, robots: opts.Robots, logger: logger}
}

// Analyze checks one row. Failures are reported inside the result (Err and
// Notes), never as a separate error.
func (a *Analyzer) Analyze(ctx context.Context, req types.CheckRequest) types.CheckResult {
	page, err := a.fetcher.Fetch(ctx, req.PageURL)
	if err != nil {
		a.logger.Warn("fetch failed", "url", req.PageURL, "kind", fetcher.Kind(err), "error", err)
		return FailedResult(req, fetcher.Kind(err), err)
	}

	result, err := Evaluate(req, page)
	if err != nil {
		a.logger.Warn("page evaluation failed", "url", req.PageURL, "error", err)
		return FailedResult(req, "parse_error", err)
	}

	if a.robots != nil {
		if u, perr := url.Parse(req.PageURL); perr == nil && !a.robots.Allowed(ctx, u) {
			result.Notes = appendNote(result.Notes, NoteRobotsDisallowed)
		}
	}

	a.logger.Debug("page analysed",
		"url", req.PageURL,
		"status", result.StatusCode,
		"matched", result.MatchedLinksCount,
		"dofollow", result.DofollowLinksCount,
		"attempts", page.Attempts,
	)
	return result
}

// FailedResult builds the row recorded when a page could not be analysed.
func FailedResult(req types.CheckRequest, kind string, err error) types.CheckResult {
	return types.CheckResult{
		PageURL: req.PageURL,
		Notes:   fmt.Sprintf("error: %s: %v", kind, err),
		Err:     err,
	}
}

// Evaluate classifies the links of an already fetched page. It performs no I/O,
// so the same page always yields the same result.
func Evaluate(req types.CheckRequest, page *types.FetchResult) (types.CheckResult, error) {
	if page == nil {
		return types.CheckResult{}, fmt.Errorf("page is nil")
	}

	result := types.CheckResult{
		PageURL:         req.PageURL,
		FinalURL:        page.FinalURL,
		StatusCode:      page.StatusCode,
		XRobotsNofollow: dofollow.HeaderNofollow(page.Headers),
	}

	contentType := page.ContentType
	if contentType == "" && page.Headers != nil {
		contentType = page.Headers.Get("Content-Type")
	}
	if page.StatusCode >= 400 || !isMarkup(contentType) {
		result.Notes = NoteNonHTML
		return result, nil
	}

	doc, err := parseDocument(page.Body, contentType)
	if err != nil {
		return types.CheckResult{}, err
	}

	base, err := url.Parse(page.FinalURL)
	if err != nil {
		return types.CheckResult{}, fmt.Errorf("parse final url: %w", err)
	}

	pageNofollow := dofollow.MetaNofollow(doc) || result.XRobotsNofollow

	var matched, followed []string
	for _, anchor := range collectAnchors(doc, base) {
		if !urlutil.MatchTarget(anchor.Href, req.Target) {
			continue
		}
		matched = append(matched, anchor.Href)
		if dofollow.IsDofollow(anchor.Rel, pageNofollow) {
			followed = append(followed, anchor.Href)
		}
	}

	examples := followed
	if len(examples) == 0 {
		examples = matched
	}
	if len(examples) > maxExamples {
		examples = examples[:maxExamples]
	}

	result.HasLink = len(matched) > 0
	result.MatchedLinksCount = len(matched)
	result.DofollowLinksCount = len(followed)
	result.LinkExamples = strings.Join(examples, exampleSeparator)
	result.PageNofollow = pageNofollow
	return result, nil
}

func isMarkup(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "xml")
}

func parseDocument(body []byte, contentType string) (*goquery.Document, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// collectAnchors returns every <a href> resolved against base. A lone '%' that
// does not start an escape is read as a literal percent sign, the way browsers
// do. Hrefs that still cannot be resolved are dropped.
func collectAnchors(doc *goquery.Document, base *url.URL) []types.Anchor {
	var anchors []types.Anchor
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		resolved, err := base.Parse(href)
		if err != nil {
			if resolved, err = base.Parse(escapeStrayPercent(href)); err != nil {
				return
			}
		}
		anchors = append(anchors, types.Anchor{
			Href: resolved.String(),
			Rel:  dofollow.RelTokens(s.AttrOr("rel", "")),
		})
	})
	return anchors
}

// escapeStrayPercent rewrites every '%' not followed by two hex digits as "%25".
func escapeStrayPercent(href string) string {
	if !strings.Contains(href, "%") {
		return href
	}
	var b strings.Builder
	b.Grow(len(href) + 4)
	for i := 0; i < len(href); i++ {
		if href[i] == '%' && !(i+2 < len(href) && isHex(href[i+1]) && isHex(href[i+2])) {
			b.WriteString("%25")
			continue
		}
		b.WriteByte(href[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "; " + note
}
