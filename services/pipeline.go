package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"walla-bot/config"
	"walla-bot/models"
	"walla-bot/storage"
	"walla-bot/utils"
)

// Extractor turns one search term into raw cards.
type Extractor interface {
	FetchListings(ctx context.Context, term string, c config.SearchCriteria) (*models.SearchResult, error)
}

// SeenStore is the durable set of ids already recorded.
type SeenStore interface {
	Contains(id string) bool
	Record(ids []string) error
}

// Notifier delivers novel listings to the operator.
type Notifier interface {
	Notify(ctx context.Context, listings []*models.Listing, attachments []string) error
}

// ImageFetcher downloads listing images, returning copies with ImagePath set.
type ImageFetcher interface {
	Fetch(ctx context.Context, listings []*models.Listing) []*models.Listing
}

// Pipeline decides which scraped listings are new, records them as seen
// and hands them to the export and notification side effects.
//
// Ids are marked seen as soon as they are classified novel, before export
// or notification. A failed CSV write or e-mail therefore never causes the
// same listing to be announced twice, at the cost of that listing not
// reaching the operator.
type Pipeline struct {
	extractor Extractor
	store     SeenStore
	writer    storage.ResultWriter
	cleaner   *Cleaner
	logger    *utils.Logger

	notifier Notifier
	images   ImageFetcher
	mirror   storage.ListingWriter

	now func() time.Time
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithNotifier enables notification of novel listings.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithImages enables image downloads for runs whose criteria ask for them.
func WithImages(f ImageFetcher) Option {
	return func(p *Pipeline) { p.images = f }
}

// WithMirror writes novel listings to a secondary store as well.
func WithMirror(w storage.ListingWriter) Option {
	return func(p *Pipeline) { p.mirror = w }
}

// NewPipeline wires the mandatory collaborators.
func NewPipeline(extractor Extractor, store SeenStore, writer storage.ResultWriter, logger *utils.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		store:     store,
		writer:    writer,
		cleaner:   NewCleaner(logger),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes every search term in order. Extraction failures are
// isolated to their term. The only error returned is a seen-set failure or
// context cancellation; in both cases the report covers the terms handled
// so far and no export or notification happens.
func (p *Pipeline) Run(ctx context.Context, c config.SearchCriteria) (*models.RunReport, error) {
	report := &models.RunReport{RunID: uuid.NewString(), StartedAt: p.now()}
	defer func() { report.FinishedAt = p.now() }()

	log := p.logger.With("run_id", report.RunID)

	for _, term := range c.Terms {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("pipeline: interrupted before %q: %w", term, err)
		}

		tr := &models.TermReport{Term: term}
		report.Terms = append(report.Terms, tr)

		novel, err := p.processTerm(ctx, log, report, tr, c)
		if err != nil {
			return report, err
		}
		report.Novel = append(report.Novel, novel...)
	}

	log.Info("[pipeline] Total unique new ads found in this run: %d", len(report.Novel))
	p.deliver(ctx, log, report, c)
	return report, nil
}

func (p *Pipeline) processTerm(ctx context.Context, log *utils.Logger, report *models.RunReport, tr *models.TermReport, c config.SearchCriteria) ([]*models.Listing, error) {
	log.Info("[pipeline] Searching for: %s", tr.Term)

	res, err := p.extractor.FetchListings(ctx, tr.Term, c)
	if err != nil {
		tr.Err = err
		log.Error("[pipeline] Search %q failed, skipping: %v", tr.Term, err)
		return nil, nil
	}
	if res.ScreenshotPath != "" {
		report.Screenshots = append(report.Screenshots, res.ScreenshotPath)
	}

	listings := p.cleaner.Clean(res.Raw, c.MaxResults)
	novel, duplicates := Partition(p.store, listings)
	tr.Extracted = len(listings)
	tr.Novel = len(novel)
	tr.Duplicate = duplicates

	if err := p.store.Record(listingIDs(novel)); err != nil {
		return nil, fmt.Errorf("pipeline: record seen ids for %q: %w", tr.Term, err)
	}

	for _, l := range novel {
		log.Info("[pipeline] NEW AD: %s - %.2f€", l.Title, l.Price)
	}
	log.Info("[pipeline] %q: %d extracted, %d new, %d already seen", tr.Term, tr.Extracted, tr.Novel, tr.Duplicate)
	return novel, nil
}

// deliver runs the side effects for the run's novel listings. Failures are
// logged and kept in the report; the seen-set is never rolled back.
func (p *Pipeline) deliver(ctx context.Context, log *utils.Logger, report *models.RunReport, c config.SearchCriteria) {
	if len(report.Novel) == 0 {
		log.Info("[pipeline] No new ads found. Nothing to export or send.")
		return
	}

	if p.images != nil && c.SaveImages {
		report.Novel = p.images.Fetch(ctx, report.Novel)
	}

	path, err := p.writer.Write(report.Novel, report.RunID)
	if err != nil {
		report.ExportErr = err
		log.Error("[pipeline] Export failed: %v", err)
	} else {
		report.ExportPath = path
		log.Info("[pipeline] Results saved to %s", path)
	}

	if p.mirror != nil {
		if err := p.mirror.Write(ctx, report.Novel); err != nil {
			report.MirrorErr = err
			log.Error("[pipeline] Mirror write failed: %v", err)
		}
	}

	if p.notifier == nil {
		log.Info("[pipeline] Notifications disabled, skipping email for this run.")
		return
	}

	var attachments []string
	if report.ExportPath != "" {
		attachments = append(attachments, report.ExportPath)
	}
	attachments = append(attachments, report.Screenshots...)

	if err := p.notifier.Notify(ctx, report.Novel, attachments); err != nil {
		report.NotifyErr = err
		log.Error("[pipeline] Notification failed: %v", err)
	}
}

// Partition splits listings into those absent from seen, first occurrence
// only, and a count of the rest.
func Partition(seen SeenStore, listings []*models.Listing) ([]*models.Listing, int) {
	inTerm := utils.NewIDSet()
	novel := make([]*models.Listing, 0, len(listings))
	duplicates := 0

	for _, l := range listings {
		if seen.Contains(l.ID) || !inTerm.Add(l.ID) {
			duplicates++
			continue
		}
		novel = append(novel, l)
	}
	return novel, duplicates
}

func listingIDs(listings []*models.Listing) []string {
	ids := make([]string, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
	}
	return ids
}
