package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walla-bot/config"
	"walla-bot/models"
	"walla-bot/storage"
)

type fakeExtractor struct {
	results map[string][]*models.RawListing
	errs    map[string]error
	calls   []string
}

func (f *fakeExtractor) FetchListings(_ context.Context, term string, _ config.SearchCriteria) (*models.SearchResult, error) {
	f.calls = append(f.calls, term)
	if err := f.errs[term]; err != nil {
		return nil, err
	}
	return &models.SearchResult{Term: term, Raw: f.results[term], ScreenshotPath: "shots/" + term + ".png"}, nil
}

type fakeWriter struct {
	err     error
	written [][]*models.Listing
	runIDs  []string
}

func (f *fakeWriter) Write(listings []*models.Listing, runID string) (string, error) {
	f.written = append(f.written, listings)
	f.runIDs = append(f.runIDs, runID)
	if f.err != nil {
		return "", f.err
	}
	return "results/" + runID + ".csv", nil
}

type fakeNotifier struct {
	err         error
	calls       int
	listings    []*models.Listing
	attachments []string
}

func (f *fakeNotifier) Notify(_ context.Context, listings []*models.Listing, attachments []string) error {
	f.calls++
	f.listings = listings
	f.attachments = attachments
	return f.err
}

type brokenStore struct{}

func (brokenStore) Contains(string) bool { return false }
func (brokenStore) Record([]string) error {
	return storage.ErrStoreUnavailable
}

func card(id, term string) *models.RawListing {
	return &models.RawListing{
		ID:          id,
		Title:       "Item " + id,
		RawPrice:    "100 €",
		Link:        "https://es.wallapop.com/item/x-" + id,
		SearchTerm:  term,
		ExtractedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func loadStore(t *testing.T, path string) *storage.SeenSet {
	t.Helper()
	s, err := storage.LoadSeenSet(path)
	require.NoError(t, err)
	return s
}

func ids(listings []*models.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.ID
	}
	return out
}

func TestPipelineNovelAndDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_ads.txt")
	store := loadStore(t, path)
	require.NoError(t, store.Record([]string{"101"}))

	ext := &fakeExtractor{results: map[string][]*models.RawListing{
		"bike": {card("101", "bike"), card("202", "bike"), card("202", "bike")},
	}}
	w := &fakeWriter{}
	n := &fakeNotifier{}

	p := NewPipeline(ext, store, w, newTestLogger(), WithNotifier(n))
	report, err := p.Run(context.Background(), config.SearchCriteria{Terms: []string{"bike"}, MaxResults: 40})
	require.NoError(t, err)

	assert.Equal(t, []string{"202"}, ids(report.Novel))
	require.Len(t, report.Terms, 1)
	assert.Equal(t, 3, report.Terms[0].Extracted)
	assert.Equal(t, 1, report.Terms[0].Novel)
	assert.Equal(t, 2, report.Terms[0].Duplicate)

	require.Len(t, w.written, 1)
	assert.Len(t, w.written[0], 1)
	assert.Equal(t, report.RunID, w.runIDs[0])
	assert.Equal(t, "results/"+report.RunID+".csv", report.ExportPath)

	assert.Equal(t, 1, n.calls)
	assert.Equal(t, []string{report.ExportPath, "shots/bike.png"}, n.attachments)

	reloaded := loadStore(t, path)
	assert.Equal(t, 2, reloaded.Len())
	assert.True(t, reloaded.Contains("101"))
	assert.True(t, reloaded.Contains("202"))
}

func TestPipelineSecondRunFindsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_ads.txt")
	ext := &fakeExtractor{results: map[string][]*models.RawListing{
		"bike": {card("1", "bike"), card("2", "bike")},
	}}
	criteria := config.SearchCriteria{Terms: []string{"bike"}}

	first, err := NewPipeline(ext, loadStore(t, path), &fakeWriter{}, newTestLogger()).Run(context.Background(), criteria)
	require.NoError(t, err)
	assert.Len(t, first.Novel, 2)

	w := &fakeWriter{}
	n := &fakeNotifier{}
	second, err := NewPipeline(ext, loadStore(t, path), w, newTestLogger(), WithNotifier(n)).Run(context.Background(), criteria)
	require.NoError(t, err)
	assert.Empty(t, second.Novel)
	assert.Empty(t, w.written, "nothing new must not produce an artifact")
	assert.Zero(t, n.calls, "nothing new must not notify")
	assert.Equal(t, 2, loadStore(t, path).Len())
}

func TestPipelineIsolatesFailedTerm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_ads.txt")
	ext := &fakeExtractor{
		results: map[string][]*models.RawListing{
			"bike": {card("1", "bike")},
			"sofa": {card("3", "sofa")},
		},
		errs: map[string]error{"lamp": errors.New("timeout")},
	}

	w := &fakeWriter{}
	report, err := NewPipeline(ext, loadStore(t, path), w, newTestLogger()).
		Run(context.Background(), config.SearchCriteria{Terms: []string{"bike", "lamp", "sofa"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"bike", "lamp", "sofa"}, ext.calls)
	assert.Equal(t, []string{"1", "3"}, ids(report.Novel))
	require.Len(t, w.written, 1)
	assert.Equal(t, []string{"1", "3"}, ids(w.written[0]))

	reloaded := loadStore(t, path)
	assert.True(t, reloaded.Contains("1"))
	assert.True(t, reloaded.Contains("3"))
	require.Len(t, report.Terms, 3)
	assert.True(t, report.Terms[1].Failed())
	assert.Zero(t, report.Terms[1].Extracted)
	assert.Equal(t, []string{"shots/bike.png", "shots/sofa.png"}, report.Screenshots)
}

func TestPipelineCrossTermDuplicateCountsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_ads.txt")
	ext := &fakeExtractor{results: map[string][]*models.RawListing{
		"bike": {card("7", "bike")},
		"mtb":  {card("7", "mtb"), card("8", "mtb")},
	}}

	report, err := NewPipeline(ext, loadStore(t, path), &fakeWriter{}, newTestLogger()).
		Run(context.Background(), config.SearchCriteria{Terms: []string{"bike", "mtb"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"7", "8"}, ids(report.Novel))
	assert.Equal(t, "bike", report.Novel[0].SearchTerm)
	assert.Equal(t, 1, report.Terms[1].Duplicate)
}

func TestPipelineDeliveryFailureStillMarksSeen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_ads.txt")
	ext := &fakeExtractor{results: map[string][]*models.RawListing{
		"bike": {card("5", "bike")},
	}}
	criteria := config.SearchCriteria{Terms: []string{"bike"}}
	w := &fakeWriter{err: &storage.ExportError{Target: "csv", Err: errors.New("disk full")}}
	n := &fakeNotifier{err: errors.New("smtp down")}

	report, err := NewPipeline(ext, loadStore(t, path), w, newTestLogger(), WithNotifier(n)).Run(context.Background(), criteria)
	require.NoError(t, err)
	assert.Error(t, report.ExportErr)
	assert.Error(t, report.NotifyErr)
	assert.Empty(t, report.ExportPath)
	assert.Equal(t, []string{"shots/bike.png"}, n.attachments)

	rerun, err := NewPipeline(ext, loadStore(t, path), &fakeWriter{}, newTestLogger()).Run(context.Background(), criteria)
	require.NoError(t, err)
	assert.Empty(t, rerun.Novel)
}

type failingMirror struct{ writes int }

func (m *failingMirror) Write(context.Context, []*models.Listing) error {
	m.writes++
	return &storage.ExportError{Target: "postgres", Err: errors.New("connection reset")}
}

func (m *failingMirror) Close() error { return nil }

func TestPipelineMirrorFailureKeepsCSV(t *testing.T) {
	ext := &fakeExtractor{results: map[string][]*models.RawListing{
		"bike": {card("9", "bike")},
	}}
	mirror := &failingMirror{}

	report, err := NewPipeline(ext, loadStore(t, filepath.Join(t.TempDir(), "seen")), &fakeWriter{}, newTestLogger(), WithMirror(mirror)).
		Run(context.Background(), config.SearchCriteria{Terms: []string{"bike"}})
	require.NoError(t, err)
	assert.Equal(t, 1, mirror.writes)
	assert.NoError(t, report.ExportErr)
	assert.NotEmpty(t, report.ExportPath)
	assert.Error(t, report.MirrorErr)
}

func TestPipelineStoreFailureIsFatal(t *testing.T) {
	ext := &fakeExtractor{results: map[string][]*models.RawListing{
		"bike": {card("1", "bike")},
		"sofa": {card("2", "sofa")},
	}}
	w := &fakeWriter{}
	n := &fakeNotifier{}

	_, err := NewPipeline(ext, brokenStore{}, w, newTestLogger(), WithNotifier(n)).
		Run(context.Background(), config.SearchCriteria{Terms: []string{"bike", "sofa"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.Equal(t, []string{"bike"}, ext.calls)
	assert.Empty(t, w.written)
	assert.Zero(t, n.calls)
}

func TestPipelineStopsOnCancel(t *testing.T) {
	ext := &fakeExtractor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewPipeline(ext, loadStore(t, filepath.Join(t.TempDir(), "seen")), &fakeWriter{}, newTestLogger()).
		Run(ctx, config.SearchCriteria{Terms: []string{"bike"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ext.calls)
	assert.NotNil(t, report)
}

func TestPartition(t *testing.T) {
	seen := loadStore(t, filepath.Join(t.TempDir(), "seen"))
	require.NoError(t, seen.Record([]string{"a"}))

	novel, dup := Partition(seen, []*models.Listing{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "b"}})
	assert.Equal(t, []string{"b", "c"}, ids(novel))
	assert.Equal(t, 2, dup)
}
