package wallapop

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"

	"walla-bot/config"
	"walla-bot/models"
	"walla-bot/utils"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
	cookieButton   = "#onetrust-accept-btn-handler"
	cookieWait     = 10 * time.Second
	settleDelay    = 2 * time.Second
	maxLoadRounds  = 50
	stalledRounds  = 2
	screenshotFile = "wallapop_search_%s_%s_screenshot.png"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// ExtractionError reports a search term whose page failed to load or parse.
type ExtractionError struct {
	Term string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %q: %v", e.Term, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Scraper drives one Chrome instance across all search terms of a run.
type Scraper struct {
	cfg    *config.Config
	logger *utils.Logger
	retry  *utils.RetryConfig

	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// Open launches the browser.
func Open(cfg *config.Config, logger *utils.Logger) (*Scraper, error) {
	chromeBin := cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[wallapop] Using browser binary: %s (headless=%t)", chromeBin, cfg.HeadlessBrowser)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.HeadlessBrowser),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("wallapop: start browser: %w", err)
	}

	return &Scraper{
		cfg:    cfg,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
	}, nil
}

// Close shuts the browser down.
func (s *Scraper) Close() {
	s.logger.Info("[wallapop] Closing browser...")
	s.cancelBrowser()
	s.cancelAlloc()
}

// FetchListings loads the search page for term, expands it up to
// MaxResults cards, saves a screenshot and returns the parsed cards.
func (s *Scraper) FetchListings(ctx context.Context, term string, c config.SearchCriteria) (*models.SearchResult, error) {
	pageURL := SearchURL(term, c)
	s.logger.Info("[wallapop] Searching for %q: %s", term, pageURL)

	var result *models.SearchResult
	err := s.retry.Do(ctx, "search-"+term, func() error {
		r, err := s.fetchOnce(ctx, pageURL, term, c)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, &ExtractionError{Term: term, Err: err}
	}
	return result, nil
}

func (s *Scraper) fetchOnce(ctx context.Context, pageURL, term string, c config.SearchCriteria) (*models.SearchResult, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, s.cfg.PageTimeout)
	defer cancelTimeout()

	if err := chromedp.Run(tabCtx, chromedp.Navigate(pageURL)); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}

	s.acceptCookies(tabCtx)

	if err := s.loadAllResults(tabCtx, c.MaxResults); err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}

	shot := s.saveScreenshot(tabCtx, term)

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	raw, err := ParseCards(html, term, time.Now(), c.SaveImages)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		s.logger.Warn("[wallapop] No product cards found for %q", term)
	}

	return &models.SearchResult{Term: term, Raw: raw, ScreenshotPath: shot}, nil
}

func (s *Scraper) acceptCookies(tabCtx context.Context) {
	ctx, cancel := context.WithTimeout(tabCtx, cookieWait)
	defer cancel()

	err := chromedp.Run(ctx, chromedp.Click(cookieButton, chromedp.ByQuery, chromedp.NodeVisible))
	if err != nil {
		s.logger.Info("[wallapop] No cookies banner found (maybe already accepted). Continuing...")
		return
	}
	s.logger.Info("[wallapop] Accepted cookies.")
}

// loadMoreJS clicks the "load more" control, which lives inside a
// walla-button shadow root. It returns whether a click happened.
const loadMoreJS = `
	(function() {
		var host = document.querySelector('#btn-load-more');
		if (host && host.shadowRoot) {
			var b = host.shadowRoot.querySelector('button');
			if (b) { b.click(); return true; }
		}
		var texts = ['Cargar más', 'Ver más productos', 'Ver más', 'Ver más resultados'];
		var buttons = document.querySelectorAll('walla-button');
		for (var i = 0; i < buttons.length; i++) {
			var t = buttons[i].getAttribute('text') || buttons[i].textContent || '';
			for (var j = 0; j < texts.length; j++) {
				if (t.indexOf(texts[j]) >= 0 && buttons[i].shadowRoot) {
					var btn = buttons[i].shadowRoot.querySelector('button');
					if (btn) { btn.click(); return true; }
				}
			}
		}
		return false;
	})()
`

const countCardsJS = `document.querySelectorAll('` + cardSelector + `').length`

// loadAllResults clicks "load more" and scrolls until maxResults cards are
// present or the count stops growing for two rounds.
func (s *Scraper) loadAllResults(ctx context.Context, maxResults int) error {
	last, stalled := 0, 0

	for round := 0; round < maxLoadRounds; round++ {
		var clicked bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(loadMoreJS, &clicked)); err != nil {
			return err
		}
		if clicked {
			s.logger.Debug("[wallapop] Clicked the 'load more' button")
			if err := chromedp.Run(ctx, chromedp.Sleep(settleDelay)); err != nil {
				return err
			}
		}

		var count int
		err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(settleDelay),
			chromedp.Evaluate(countCardsJS, &count),
		)
		if err != nil {
			return err
		}
		s.logger.Debug("[wallapop] Current number of product cards: %d", count)

		if count >= maxResults {
			s.logger.Info("[wallapop] Reached %d results (>= %d)", count, maxResults)
			return nil
		}
		if count == last {
			stalled++
			if stalled >= stalledRounds {
				s.logger.Info("[wallapop] No more results after scrolling (%d cards)", count)
				return nil
			}
		} else {
			stalled = 0
		}
		last = count
	}
	return nil
}

// saveScreenshot writes the current viewport and returns its path, or ""
// when capture failed.
func (s *Scraper) saveScreenshot(ctx context.Context, term string) string {
	if err := os.MkdirAll(s.cfg.ScreenshotsDir, 0755); err != nil {
		s.logger.Warn("[wallapop] Cannot create screenshot dir: %v", err)
		return ""
	}

	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		s.logger.Warn("[wallapop] Screenshot failed for %q: %v", term, err)
		return ""
	}

	name := fmt.Sprintf(screenshotFile, unsafeChars.ReplaceAllString(term, "_"), time.Now().Format("20060102-150405"))
	path := filepath.Join(s.cfg.ScreenshotsDir, name)
	if err := os.WriteFile(path, buf, 0644); err != nil {
		s.logger.Warn("[wallapop] Screenshot write failed: %v", err)
		return ""
	}
	s.logger.Info("[wallapop] Screenshot saved to %s", path)
	return path
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
