package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float(f float64) *float64 { return &f }

func validConfig() *Config {
	return &Config{
		Search: SearchCriteria{
			Terms:      []string{"bike"},
			MinPrice:   float(100),
			MaxPrice:   float(500),
			Location:   "Madrid",
			RadiusKm:   50,
			MaxResults: 40,
		},
		PageTimeout: 90 * time.Second,
		SeenAdsFile: "data/seen_ads.txt",
	}
}

func clearCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("WALLABOT_SENDER_EMAIL", "")
	t.Setenv("WALLABOT_APP_PASSWORD", "")
	t.Setenv("WALLABOT_RECIPIENT_EMAIL", "")
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsInvertedPriceBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Search.MinPrice = float(800)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max_price")
}

func TestValidateUnboundedPrices(t *testing.T) {
	cfg := validConfig()
	cfg.Search.MinPrice = nil
	cfg.Search.MaxPrice = nil
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Search.Terms = nil
	cfg.Search.MaxResults = 0
	cfg.Search.MinPrice = float(-1)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one search term")
	assert.Contains(t, err.Error(), "max_results")
	assert.Contains(t, err.Error(), "min_price -1.00 is negative")
}

func TestValidateLocation(t *testing.T) {
	cfg := validConfig()
	cfg.Search.Location = "atlantis"
	require.Error(t, cfg.Validate())

	cfg.Search.Latitude = float(39.0)
	cfg.Search.Longitude = float(-1.0)
	assert.NoError(t, cfg.Validate())

	cfg.Search.Longitude = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateEmailNeedsCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.SendEmail = true
	require.Error(t, cfg.Validate())

	cfg.Credentials = Credentials{SenderEmail: "a@example.com", AppPassword: "x", RecipientEmail: "b@example.com"}
	assert.NoError(t, cfg.Validate())
}

func TestCoordinates(t *testing.T) {
	c := SearchCriteria{Location: " Barcelona "}
	lat, lon, ok := c.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 41.3851, lat, 1e-9)
	assert.InDelta(t, 2.1734, lon, 1e-9)

	_, _, ok = SearchCriteria{}.Coordinates()
	assert.False(t, ok)
}

func TestLoadWritesSampleWhenMissing(t *testing.T) {
	clearCredentials(t)
	path := filepath.Join(t.TempDir(), "config.json")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrConfigCreated)
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"mountain bike"}, cfg.Search.Terms)
	require.NotNil(t, cfg.Search.MinPrice)
	assert.Equal(t, 200.0, *cfg.Search.MinPrice)
	assert.True(t, cfg.Search.SaveImages)
	assert.False(t, cfg.SendEmail)
}

func TestLoadWritesSampleWithoutJSONExtension(t *testing.T) {
	clearCredentials(t)
	path := filepath.Join(t.TempDir(), "wallabot.conf")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrConfigCreated)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"mountain bike"}, cfg.Search.Terms)
}

func TestLoadAppliesDefaultsAndLegacyTerm(t *testing.T) {
	clearCredentials(t)
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"search_term": "  road bike ", "send_email": false}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"road bike"}, cfg.Search.Terms)
	assert.Nil(t, cfg.Search.MinPrice)
	assert.Nil(t, cfg.Search.MaxPrice)
	assert.Equal(t, 40, cfg.Search.MaxResults)
	assert.True(t, cfg.HeadlessBrowser)
	assert.Equal(t, "data/seen_ads.txt", cfg.SeenAdsFile)
	assert.Equal(t, 90*time.Second, cfg.PageTimeout)
	assert.Equal(t, "smtp.gmail.com", cfg.SMTPHost)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	clearCredentials(t)
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"search_terms": ["bike"], "min_price": 900, "max_price": 100, "send_email": false}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max_price")
}

func TestLoadCredentialsFromEnvFile(t *testing.T) {
	clearCredentials(t)
	os.Unsetenv("WALLABOT_SENDER_EMAIL")
	os.Unsetenv("WALLABOT_APP_PASSWORD")
	os.Unsetenv("WALLABOT_RECIPIENT_EMAIL")

	path := filepath.Join(t.TempDir(), ".env")
	body := "WALLABOT_SENDER_EMAIL=bot@example.com\nWALLABOT_APP_PASSWORD=secret\nWALLABOT_RECIPIENT_EMAIL=me@example.com\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "bot@example.com", creds.SenderEmail)
	assert.Equal(t, "secret", creds.AppPassword)
	assert.Equal(t, "me@example.com", creds.RecipientEmail)
}
