package storage

import (
	"context"

	"walla-bot/models"
)

// ResultWriter persists the novel listings of one run as a single artifact.
type ResultWriter interface {
	Write(listings []*models.Listing, runID string) (string, error)
}

// ListingWriter is the interface any secondary storage backend must satisfy.
type ListingWriter interface {
	Write(ctx context.Context, listings []*models.Listing) error
	Close() error
}
