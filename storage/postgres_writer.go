package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"walla-bot/models"
)

const insertBatchSize = 50

// PostgresWriter mirrors novel listings into PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := NewPostgresWriterFromDB(db)
	if err := pw.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

// NewPostgresWriterFromDB wraps an open handle without migrating.
func NewPostgresWriterFromDB(db *sql.DB) *PostgresWriter {
	return &PostgresWriter{db: db}
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id           SERIAL PRIMARY KEY,
			listing_id   TEXT          UNIQUE NOT NULL,
			search_term  TEXT          NOT NULL DEFAULT '',
			title        TEXT          NOT NULL,
			price        NUMERIC(12,2) NOT NULL DEFAULT 0,
			link         TEXT          NOT NULL,
			image_url    TEXT          NOT NULL DEFAULT '',
			image_path   TEXT          NOT NULL DEFAULT '',
			extracted_at TIMESTAMPTZ   NOT NULL,
			created_at   TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_price       ON listings(price);
		CREATE INDEX IF NOT EXISTS idx_listings_search_term ON listings(search_term);
	`)
	return err
}

// Write batch-inserts listings; ids already present are left untouched.
func (pw *PostgresWriter) Write(ctx context.Context, listings []*models.Listing) error {
	for i := 0; i < len(listings); i += insertBatchSize {
		end := i + insertBatchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := pw.insertBatch(ctx, listings[i:end]); err != nil {
			return &ExportError{Target: "postgres", Err: err}
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(ctx context.Context, batch []*models.Listing) error {
	const cols = 8
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, l := range batch {
		base := idx * cols
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		valueArgs = append(valueArgs,
			l.ID, l.SearchTerm, l.Title, l.Price, l.Link, l.ImageURL, l.ImagePath, l.ExtractedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (listing_id, search_term, title, price, link, image_url, image_path, extracted_at)
		VALUES %s
		ON CONFLICT (listing_id) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.ExecContext(ctx, query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll retrieves all mirrored listings, oldest first.
func (pw *PostgresWriter) FetchAll(ctx context.Context) ([]*models.Listing, error) {
	rows, err := pw.db.QueryContext(ctx, `
		SELECT listing_id, search_term, title, price, link, image_url, image_path, extracted_at
		FROM listings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		if err := rows.Scan(
			&l.ID, &l.SearchTerm, &l.Title, &l.Price, &l.Link,
			&l.ImageURL, &l.ImagePath, &l.ExtractedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
