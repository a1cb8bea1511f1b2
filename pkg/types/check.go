package types

import "net/http"

// CheckRequest is one input row: the page to inspect and the link target to look for.
type CheckRequest struct {
	PageURL string
	Target  string
}

// FetchResult represents a fetched page after redirects.
type FetchResult struct {
	URL         string
	FinalURL    string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	ContentType string
	Attempts    int
}

// Anchor is a single <a href> found on a page, resolved against the final URL.
type Anchor struct {
	Href string
	Rel  []string
}

// Progress reports how far a batch run has advanced.
type Progress struct {
	Done    int
	Total   int
	PageURL string
}
