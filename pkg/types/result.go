package types

import (
	"encoding/json"
	"strconv"
)

// ResultColumns lists the output fields in their serialised order.
var ResultColumns = []string{
	"page_url",
	"final_url",
	"status_code",
	"has_link",
	"matched_links_count",
	"dofollow_links_count",
	"link_examples",
	"page_nofollow",
	"x_robots_nofollow",
	"notes",
}

// CheckResult is the outcome for a single input row. A non-nil Err marks a row
// whose page could not be analysed; its status and nofollow fields are blank.
type CheckResult struct {
	PageURL            string
	FinalURL           string
	StatusCode         int
	HasLink            bool
	MatchedLinksCount  int
	DofollowLinksCount int
	LinkExamples       string
	PageNofollow       bool
	XRobotsNofollow    bool
	Notes              string

	Err error
}

// Failed reports whether the row ended in an error rather than an HTTP response.
func (r CheckResult) Failed() bool {
	return r.Err != nil
}

// Record renders the result as string cells in ResultColumns order.
func (r CheckResult) Record() []string {
	status, pageNofollow, xRobots := "", "", ""
	if !r.Failed() {
		status = strconv.Itoa(r.StatusCode)
		pageNofollow = strconv.FormatBool(r.PageNofollow)
		xRobots = strconv.FormatBool(r.XRobotsNofollow)
	}
	return []string{
		r.PageURL,
		r.FinalURL,
		status,
		strconv.FormatBool(r.HasLink),
		strconv.Itoa(r.MatchedLinksCount),
		strconv.Itoa(r.DofollowLinksCount),
		r.LinkExamples,
		pageNofollow,
		xRobots,
		r.Notes,
	}
}

type resultJSON struct {
	PageURL            string `json:"page_url"`
	FinalURL           string `json:"final_url"`
	StatusCode         *int   `json:"status_code"`
	HasLink            bool   `json:"has_link"`
	MatchedLinksCount  int    `json:"matched_links_count"`
	DofollowLinksCount int    `json:"dofollow_links_count"`
	LinkExamples       string `json:"link_examples"`
	PageNofollow       *bool  `json:"page_nofollow"`
	XRobotsNofollow    *bool  `json:"x_robots_nofollow"`
	Notes              string `json:"notes"`
}

// MarshalJSON emits nulls for the fields a failed row leaves blank.
func (r CheckResult) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		PageURL:            r.PageURL,
		FinalURL:           r.FinalURL,
		HasLink:            r.HasLink,
		MatchedLinksCount:  r.MatchedLinksCount,
		DofollowLinksCount: r.DofollowLinksCount,
		LinkExamples:       r.LinkExamples,
		Notes:              r.Notes,
	}
	if !r.Failed() {
		status, pageNofollow, xRobots := r.StatusCode, r.PageNofollow, r.XRobotsNofollow
		out.StatusCode = &status
		out.PageNofollow = &pageNofollow
		out.XRobotsNofollow = &xRobots
	}
	return json.Marshal(out)
}
