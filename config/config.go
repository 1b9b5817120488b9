package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultPath is where the bot looks for its configuration.
const DefaultPath = "config.json"

// ErrConfigCreated is returned by Load when no configuration existed and a
// sample was written in its place.
var ErrConfigCreated = errors.New("config: sample configuration created, edit it and run again")

// SearchCriteria is the immutable search definition for one run.
type SearchCriteria struct {
	Terms      []string
	MinPrice   *float64
	MaxPrice   *float64
	Location   string
	Latitude   *float64
	Longitude  *float64
	RadiusKm   int
	MaxResults int
	SaveImages bool
}

// Coordinates resolves the search centre, preferring explicit coordinates
// over a known city name.
func (c SearchCriteria) Coordinates() (lat, lon float64, ok bool) {
	if c.Latitude != nil && c.Longitude != nil {
		return *c.Latitude, *c.Longitude, true
	}
	if c.Location == "" {
		return 0, 0, false
	}
	p, ok := knownLocations[strings.ToLower(strings.TrimSpace(c.Location))]
	return p.lat, p.lon, ok
}

// Credentials are the SMTP identities, supplied through the environment.
type Credentials struct {
	SenderEmail    string
	AppPassword    string
	RecipientEmail string
}

// Config holds all application configuration.
type Config struct {
	Search SearchCriteria

	HeadlessBrowser bool
	SendEmail       bool
	PageTimeout     time.Duration
	MaxRetries      int
	ChromeBin       string

	SeenAdsFile    string
	CSVDir         string
	ScreenshotsDir string
	ImagesDir      string
	LogFile        string
	LogLevel       string

	PostgresDSN string
	SMTPHost    string
	SMTPPort    int
	Schedule    string

	Credentials Credentials
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("radius_km", 50)
	v.SetDefault("max_results", 40)
	v.SetDefault("headless_browser", true)
	v.SetDefault("save_images", false)
	v.SetDefault("send_email", true)
	v.SetDefault("page_timeout_seconds", 90)
	v.SetDefault("max_retries", 3)
	v.SetDefault("seen_ads_file", "data/seen_ads.txt")
	v.SetDefault("csv_dir", "data/csv")
	v.SetDefault("screenshots_dir", "data/screenshots")
	v.SetDefault("images_dir", "product_images")
	v.SetDefault("log_file", "logs/wallabot.log")
	v.SetDefault("log_level", "info")
	v.SetDefault("smtp_host", "smtp.gmail.com")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("schedule", "@every 30m")
}

// Load reads the JSON configuration at path, applies WALLABOT_* environment
// overrides and validates the result together with the credentials. When
// the file does not exist a sample is written and ErrConfigCreated returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := WriteSample(path); err != nil {
			return nil, err
		}
		return nil, ErrConfigCreated
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("WALLABOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	creds, err := LoadCredentials()
	if err != nil {
		return nil, err
	}

	cfg := fromViper(v)
	cfg.Credentials = creds

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	terms := v.GetStringSlice("search_terms")
	if len(terms) == 0 && v.GetString("search_term") != "" {
		terms = []string{v.GetString("search_term")}
	}
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		cleaned = append(cleaned, strings.TrimSpace(t))
	}

	return &Config{
		Search: SearchCriteria{
			Terms:      cleaned,
			MinPrice:   optionalFloat(v, "min_price"),
			MaxPrice:   optionalFloat(v, "max_price"),
			Location:   strings.TrimSpace(v.GetString("location")),
			Latitude:   optionalFloat(v, "latitude"),
			Longitude:  optionalFloat(v, "longitude"),
			RadiusKm:   v.GetInt("radius_km"),
			MaxResults: v.GetInt("max_results"),
			SaveImages: v.GetBool("save_images"),
		},
		HeadlessBrowser: v.GetBool("headless_browser"),
		SendEmail:       v.GetBool("send_email"),
		PageTimeout:     time.Duration(v.GetInt("page_timeout_seconds")) * time.Second,
		MaxRetries:      v.GetInt("max_retries"),
		ChromeBin:       v.GetString("chrome_bin"),

		SeenAdsFile:    v.GetString("seen_ads_file"),
		CSVDir:         v.GetString("csv_dir"),
		ScreenshotsDir: v.GetString("screenshots_dir"),
		ImagesDir:      v.GetString("images_dir"),
		LogFile:        v.GetString("log_file"),
		LogLevel:       v.GetString("log_level"),

		PostgresDSN: v.GetString("postgres_dsn"),
		SMTPHost:    v.GetString("smtp_host"),
		SMTPPort:    v.GetInt("smtp_port"),
		Schedule:    v.GetString("schedule"),
	}
}

func optionalFloat(v *viper.Viper, key string) *float64 {
	if !v.IsSet(key) {
		return nil
	}
	f := v.GetFloat64(key)
	return &f
}

// LoadCredentials reads the mail identities from the environment, loading a
// .env file first when one is present.
func LoadCredentials(envFiles ...string) (Credentials, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, fmt.Errorf("config: load env file: %w", err)
	}
	return Credentials{
		SenderEmail:    os.Getenv("WALLABOT_SENDER_EMAIL"),
		AppPassword:    os.Getenv("WALLABOT_APP_PASSWORD"),
		RecipientEmail: os.Getenv("WALLABOT_RECIPIENT_EMAIL"),
	}, nil
}

// Validate rejects invalid option combinations before any network activity.
func (c *Config) Validate() error {
	var errs []error
	s := c.Search

	if len(s.Terms) == 0 {
		errs = append(errs, errors.New("at least one search term is required"))
	}
	for i, t := range s.Terms {
		if t == "" {
			errs = append(errs, fmt.Errorf("search term %d is blank", i))
		}
	}
	if s.MinPrice != nil && *s.MinPrice < 0 {
		errs = append(errs, fmt.Errorf("min_price %.2f is negative", *s.MinPrice))
	}
	if s.MaxPrice != nil && *s.MaxPrice < 0 {
		errs = append(errs, fmt.Errorf("max_price %.2f is negative", *s.MaxPrice))
	}
	if s.MinPrice != nil && s.MaxPrice != nil && *s.MinPrice > *s.MaxPrice {
		errs = append(errs, fmt.Errorf("min_price %.2f exceeds max_price %.2f", *s.MinPrice, *s.MaxPrice))
	}
	if s.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("max_results must be positive, got %d", s.MaxResults))
	}
	if (s.Latitude == nil) != (s.Longitude == nil) {
		errs = append(errs, errors.New("latitude and longitude must be set together"))
	}
	if s.Location != "" || s.Latitude != nil {
		if _, _, ok := s.Coordinates(); !ok {
			errs = append(errs, fmt.Errorf("unknown location %q: set latitude and longitude", s.Location))
		}
		if s.RadiusKm <= 0 {
			errs = append(errs, fmt.Errorf("radius_km must be positive, got %d", s.RadiusKm))
		}
	}
	if c.PageTimeout <= 0 {
		errs = append(errs, errors.New("page_timeout_seconds must be positive"))
	}
	if c.SeenAdsFile == "" {
		errs = append(errs, errors.New("seen_ads_file is required"))
	}
	if c.SendEmail {
		cr := c.Credentials
		if cr.SenderEmail == "" || cr.AppPassword == "" || cr.RecipientEmail == "" {
			errs = append(errs, errors.New("send_email requires WALLABOT_SENDER_EMAIL, WALLABOT_APP_PASSWORD and WALLABOT_RECIPIENT_EMAIL"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}

// WriteSample writes an example configuration for the operator to edit.
func WriteSample(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create dir: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigType("json")
	v.Set("search_terms", []string{"mountain bike"})
	v.Set("min_price", 200)
	v.Set("max_price", 750)
	v.Set("location", "madrid")
	v.Set("radius_km", 50)
	v.Set("headless_browser", true)
	v.Set("save_images", true)
	v.Set("send_email", false)
	v.Set("max_results", 40)

	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("config: write sample %s: %w", path, err)
	}
	return nil
}
