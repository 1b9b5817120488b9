package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"walla-bot/models"
)

// ExportError reports a failed write of a run's results.
type ExportError struct {
	Target string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %s: %v", e.Target, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

var baseColumns = []string{"run_id", "id", "search_term", "title", "price", "link", "extracted_at"}

// CSVWriter writes one timestamped CSV file per run into a directory.
type CSVWriter struct {
	dir    string
	prefix string
	now    func() time.Time
}

// NewCSVWriter creates a writer for dir. The directory is created on first write.
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{dir: dir, prefix: "wallapop_results", now: time.Now}
}

// Columns derives the header for a record set: run id and the listing fields, plus
// image_url and image_path when any record populates them.
func Columns(listings []*models.Listing) []string {
	var hasURL, hasPath bool
	for _, l := range listings {
		hasURL = hasURL || l.ImageURL != ""
		hasPath = hasPath || l.ImagePath != ""
	}
	cols := append([]string(nil), baseColumns...)
	if hasURL {
		cols = append(cols, "image_url")
	}
	if hasPath {
		cols = append(cols, "image_path")
	}
	return cols
}

// Write stores listings in extraction order and returns the file path.
// An existing file is never overwritten; a numeric suffix is added instead.
func (c *CSVWriter) Write(listings []*models.Listing, runID string) (string, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", &ExportError{Target: c.dir, Err: err}
	}

	f, path, err := c.create()
	if err != nil {
		return "", err
	}

	cols := Columns(listings)
	w := csv.NewWriter(f)
	if err := w.Write(cols); err != nil {
		f.Close()
		return path, &ExportError{Target: path, Err: fmt.Errorf("write header: %w", err)}
	}
	for _, l := range listings {
		if err := w.Write(row(runID, l, cols)); err != nil {
			f.Close()
			return path, &ExportError{Target: path, Err: fmt.Errorf("write row %s: %w", l.ID, err)}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return path, &ExportError{Target: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return path, &ExportError{Target: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return path, &ExportError{Target: path, Err: err}
	}
	return path, nil
}

func (c *CSVWriter) create() (*os.File, string, error) {
	stamp := c.now().Format("20060102-150405")
	base := filepath.Join(c.dir, fmt.Sprintf("%s_%s", c.prefix, stamp))

	for n := 0; n < 100; n++ {
		path := base + ".csv"
		if n > 0 {
			path = fmt.Sprintf("%s-%d.csv", base, n)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, path, &ExportError{Target: path, Err: err}
		}
	}
	return nil, base, &ExportError{Target: base, Err: errors.New("too many artifacts with the same timestamp")}
}

func row(runID string, l *models.Listing, cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		switch col {
		case "run_id":
			out = append(out, runID)
		case "id":
			out = append(out, l.ID)
		case "search_term":
			out = append(out, l.SearchTerm)
		case "title":
			out = append(out, l.Title)
		case "price":
			out = append(out, strconv.FormatFloat(l.Price, 'f', -1, 64))
		case "link":
			out = append(out, l.Link)
		case "extracted_at":
			out = append(out, l.ExtractedAt.Format(time.RFC3339))
		case "image_url":
			out = append(out, l.ImageURL)
		case "image_path":
			out = append(out, l.ImagePath)
		}
	}
	return out
}
