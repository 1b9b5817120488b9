package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"walla-bot/models"
	"walla-bot/storage"
	"walla-bot/utils"
)

// priceRegexp captures a euro amount written with '.' thousands and ',' decimals
var priceRegexp = regexp.MustCompile(`\d[\d.]*(?:,\d+)?`)

// Cleaner transforms RawListings into validated Listings.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean validates raw cards in extraction order, keeping at most maxResults.
// Cards without a storable id or a title, or with an unreadable price, are dropped.
// Repeated ids are kept; deduplication happens in the pipeline.
func (c *Cleaner) Clean(raw []*models.RawListing, maxResults int) []*models.Listing {
	if maxResults > 0 && len(raw) > maxResults {
		raw = raw[:maxResults]
	}
	result := make([]*models.Listing, 0, len(raw))

	for _, r := range raw {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			c.logger.Warn("[cleaner] Dropping card without id: %s", r.Title)
			continue
		}
		if !storage.ValidID(id) {
			c.logger.Warn("[cleaner] Dropping card with unstorable id %q", id)
			continue
		}

		title := normaliseText(r.Title)
		if title == "" {
			c.logger.Warn("[cleaner] Dropping card %s without title", id)
			continue
		}

		price, ok := parsePrice(r.RawPrice)
		if !ok {
			c.logger.Warn("[cleaner] Dropping card %s with unreadable price %q", id, r.RawPrice)
			continue
		}

		result = append(result, &models.Listing{
			ID:          id,
			SearchTerm:  r.SearchTerm,
			Title:       title,
			Price:       price,
			Link:        strings.TrimSpace(r.Link),
			ExtractedAt: r.ExtractedAt,
			ImageURL:    strings.TrimSpace(r.ImageURL),
		})
	}

	c.logger.Debug("[cleaner] Cleaned %d -> %d listings (dropped %d)",
		len(raw), len(result), len(raw)-len(result))
	return result
}

// parsePrice reads the first amount in a card's price text.
// Examples:
//
//	"350 €"       -> 350
//	"1.250,50 €"  -> 1250.5
//	"Gratis"      -> not ok
func parsePrice(raw string) (float64, bool) {
	match := priceRegexp.FindString(raw)
	if match == "" {
		return 0, false
	}
	match = strings.ReplaceAll(match, ".", "")
	match = strings.ReplaceAll(match, ",", ".")

	v, err := strconv.ParseFloat(match, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}
