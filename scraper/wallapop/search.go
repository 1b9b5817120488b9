package wallapop

import (
	"net/url"
	"strconv"

	"walla-bot/config"
)

const (
	baseURL   = "https://es.wallapop.com"
	searchURL = baseURL + "/app/search"
)

// SearchURL builds the newest-first search page for term.
func SearchURL(term string, c config.SearchCriteria) string {
	q := url.Values{}
	q.Set("keywords", term)
	if c.MinPrice != nil {
		q.Set("min_sale_price", formatPrice(*c.MinPrice))
	}
	if c.MaxPrice != nil {
		q.Set("max_sale_price", formatPrice(*c.MaxPrice))
	}
	if lat, lon, ok := c.Coordinates(); ok {
		q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
		q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
		q.Set("distance", strconv.Itoa(c.RadiusKm*1000))
	}
	q.Set("order_by", "newest")
	return searchURL + "?" + q.Encode()
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
