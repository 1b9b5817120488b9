package wallapop

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"walla-bot/models"
)

const cardSelector = "a.ItemCardList__item"

// ParseCards extracts raw listings from a rendered search page, in page order.
func ParseCards(html, term string, at time.Time, withImages bool) ([]*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	base, _ := url.Parse(baseURL)
	var out []*models.RawListing

	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		href, _ := card.Attr("href")
		link := absoluteLink(base, href)
		id := listingID(link)
		if id == "" {
			return
		}

		title, _ := card.Attr("title")
		title = strings.TrimSpace(title)
		if title == "" {
			title = strings.TrimSpace(card.Find(".ItemCard__title").First().Text())
		}

		raw := &models.RawListing{
			ID:          id,
			Title:       title,
			RawPrice:    strings.TrimSpace(card.Find(".ItemCard__price").First().Text()),
			Link:        link,
			SearchTerm:  term,
			ExtractedAt: at,
		}
		if withImages {
			if src, ok := card.Find("img").First().Attr("src"); ok {
				raw.ImageURL = absoluteLink(base, src)
			}
		}
		out = append(out, raw)
	})

	return out, nil
}

func absoluteLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// listingID is the last path segment of the item link.
func listingID(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.EscapedPath(), "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
