package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"walla-bot/models"
	"walla-bot/utils"
)

var unsafeNameChars = regexp.MustCompile(`[^\w\-]+`)

// ImageDownloader saves listing images into a directory.
type ImageDownloader struct {
	dir     string
	client  *http.Client
	retry   utils.RetryConfig
	workers int
	rateMs  int
	logger  *utils.Logger
}

// NewImageDownloader creates a downloader writing into dir.
func NewImageDownloader(dir string, logger *utils.Logger) *ImageDownloader {
	return &ImageDownloader{
		dir:     dir,
		client:  &http.Client{Timeout: 10 * time.Second},
		retry:   utils.RetryConfig{MaxAttempts: 2, BaseDelay: 500 * time.Millisecond, Logger: logger},
		workers: 4,
		rateMs:  100,
		logger:  logger,
	}
}

// Fetch downloads the image of every listing that has one and returns copies
// with ImagePath set. A failed download leaves ImagePath empty. Order is kept.
func (d *ImageDownloader) Fetch(ctx context.Context, listings []*models.Listing) []*models.Listing {
	out := make([]*models.Listing, len(listings))
	copy(out, listings)

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		d.logger.Error("[images] Cannot create %s: %v", d.dir, err)
		return out
	}

	pool := utils.NewWorkerPool(d.workers, d.rateMs)
	var mu sync.Mutex
	saved := 0

	for i, l := range listings {
		if l.ImageURL == "" {
			continue
		}
		i, l := i, l
		pool.Submit(func() {
			path := filepath.Join(d.dir, ImageFileName(l))
			err := d.retry.Do(ctx, "image "+l.ID, func() error {
				return d.download(ctx, l.ImageURL, path)
			})
			if err != nil {
				d.logger.Warn("[images] Could not save image for %s: %v", l.ID, err)
				return
			}
			mu.Lock()
			out[i] = l.WithImagePath(path)
			saved++
			mu.Unlock()
		})
	}
	pool.Wait()

	d.logger.Info("[images] Saved %d images to %s", saved, d.dir)
	return out
}

func (d *ImageDownloader) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ImageFileName builds "<id>_<title>.jpg" with the title reduced to at most
// 30 filesystem-safe characters.
func ImageFileName(l *models.Listing) string {
	title := unsafeNameChars.ReplaceAllString(strings.TrimSpace(l.Title), "_")
	title = strings.Trim(title, "_")
	if r := []rune(title); len(r) > 30 {
		title = string(r[:30])
	}
	id := unsafeNameChars.ReplaceAllString(l.ID, "_")
	if title == "" {
		return id + ".jpg"
	}
	return fmt.Sprintf("%s_%s.jpg", id, title)
}
