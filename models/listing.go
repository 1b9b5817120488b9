package models

import "time"

// RawListing holds unprocessed card data directly from the rendered search page.
type RawListing struct {
	ID          string
	Title       string
	RawPrice    string
	Link        string
	ImageURL    string
	SearchTerm  string
	ExtractedAt time.Time
}

// Listing is one validated marketplace ad at one point in time. ID is the
// dedup key. A Listing is never mutated once created; enrichment steps
// return copies.
type Listing struct {
	ID          string
	SearchTerm  string
	Title       string
	Price       float64
	Link        string
	ExtractedAt time.Time
	ImageURL    string
	ImagePath   string
}

// WithImagePath returns a copy of l carrying the local image path.
func (l *Listing) WithImagePath(path string) *Listing {
	c := *l
	c.ImagePath = path
	return &c
}

// SearchResult is what the extractor produces for one search term.
type SearchResult struct {
	Term           string
	Raw            []*RawListing
	ScreenshotPath string
}

// TermReport counts how one search term was processed.
type TermReport struct {
	Term      string
	Extracted int
	Novel     int
	Duplicate int
	Err       error
}

// Failed reports whether extraction for the term failed.
func (t *TermReport) Failed() bool { return t.Err != nil }

// RunReport describes one execution across all configured search terms.
type RunReport struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Terms       []*TermReport
	Novel       []*Listing
	Screenshots []string
	ExportPath  string
	ExportErr   error
	MirrorErr   error
	NotifyErr   error
}

// InsightReport holds the run-end summary over novel listings.
type InsightReport struct {
	TotalTerms      int
	FailedTerms     int
	TotalExtracted  int
	TotalNovel      int
	TotalDuplicates int
	AveragePrice    float64
	MinPrice        float64
	MaxPrice        float64
	Cheapest        *Listing
	NovelByTerm     map[string]int
}
