package wallapop

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walla-bot/config"
)

func float(f float64) *float64 { return &f }

func TestSearchURLWithBoundsAndLocation(t *testing.T) {
	c := config.SearchCriteria{
		MinPrice: float(200),
		MaxPrice: float(750.5),
		Location: "madrid",
		RadiusKm: 50,
	}

	u, err := url.Parse(SearchURL("mountain bike", c))
	require.NoError(t, err)
	assert.Equal(t, "es.wallapop.com", u.Host)
	assert.Equal(t, "/app/search", u.Path)

	q := u.Query()
	assert.Equal(t, "mountain bike", q.Get("keywords"))
	assert.Equal(t, "200", q.Get("min_sale_price"))
	assert.Equal(t, "750.5", q.Get("max_sale_price"))
	assert.Equal(t, "40.4168", q.Get("latitude"))
	assert.Equal(t, "-3.7038", q.Get("longitude"))
	assert.Equal(t, "50000", q.Get("distance"))
	assert.Equal(t, "newest", q.Get("order_by"))
}

func TestSearchURLUnbounded(t *testing.T) {
	u, err := url.Parse(SearchURL("bike", config.SearchCriteria{}))
	require.NoError(t, err)

	q := u.Query()
	for _, key := range []string{"min_sale_price", "max_sale_price", "latitude", "longitude", "distance"} {
		assert.False(t, q.Has(key), key)
	}
	assert.Contains(t, u.RawQuery, "keywords=bike")
}

func TestSearchURLExplicitCoordinates(t *testing.T) {
	c := config.SearchCriteria{Latitude: float(39.5), Longitude: float(-0.4), RadiusKm: 5}
	q, err := url.ParseQuery(SearchURL("sofa", c)[len(searchURL)+1:])
	require.NoError(t, err)
	assert.Equal(t, "39.5", q.Get("latitude"))
	assert.Equal(t, "5000", q.Get("distance"))
}
