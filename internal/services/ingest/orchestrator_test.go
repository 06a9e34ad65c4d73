package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/cache"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/services/catalog"
	"storefront/internal/services/events"
	"storefront/internal/services/feed"
	"storefront/internal/store"
	"storefront/internal/store/storetest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	feed       []models.ProductInput
	sitemap    []models.ProductInput
	feedErr    error
	sitemapErr error
}

func (s *stubSource) FetchFeed(context.Context, string) ([]models.ProductInput, error) {
	return s.feed, s.feedErr
}

func (s *stubSource) FetchSitemapProducts(context.Context, string) ([]models.ProductInput, error) {
	return s.sitemap, s.sitemapErr
}

func newOrchestrator(t *testing.T, source Source) (*Orchestrator, *store.Store, *models.Site, *metrics.Metrics) {
	t.Helper()
	s, _ := storetest.Open(t)
	site := storetest.Site(t, s, "shop.example.com")
	log := logger.Nop()
	emitter := events.NewDirectEmitter(events.NewRecorder(s, log), log)
	svc := catalog.NewService(s, emitter, cache.Noop{}, log)
	m := metrics.NewUnregistered()
	return NewOrchestrator(source, svc, s, emitter, m, log, 10), s, site, m
}

func TestRunValidation(t *testing.T) {
	o, s, site, _ := newOrchestrator(t, &stubSource{})
	ctx := context.Background()

	_, err := o.Run(ctx, Request{FeedURL: "https://x.com/feed.json"})
	assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
	assert.EqualError(t, err, "Missing site_id")

	_, err = o.Run(ctx, Request{SiteID: site.ID})
	assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
	assert.EqualError(t, err, "Either feed_url or sitemap_url is required")

	_, err = o.Run(ctx, Request{SiteID: "00000000-0000-4000-8000-000000000000", FeedURL: "https://x.com/feed.json"})
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))
	assert.EqualError(t, err, "Invalid site_id: Site not found")

	count, err := s.CountProducts(ctx, site.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	event, err := s.LatestEvent(ctx, site.ID, models.EventBulkSyncFinished, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestRunCombinesSources(t *testing.T) {
	source := &stubSource{
		feed: []models.ProductInput{
			{Title: "Mug", Price: "9.99", BuyURL: "/products/mug"},
			{Title: "Lamp", Price: "24.00", BuyURL: "/products/lamp"},
			{},
		},
		sitemap: []models.ProductInput{
			{Title: "Mug", Price: "9.99", BuyURL: "/products/mug"},
			{Title: "Rug", Price: "40", BuyURL: "/products/rug"},
		},
	}
	o, s, site, m := newOrchestrator(t, source)
	ctx := context.Background()

	res, err := o.Run(ctx, Request{SiteID: site.ID, FeedURL: "https://x.com/feed.json", SitemapURL: "https://x.com/sitemap.xml"})
	require.NoError(t, err)
	assert.Equal(t, &Result{Inserted: 3, Updated: 0, Unchanged: 1, Errors: 1, Total: 5}, res)

	event, err := s.LatestEvent(ctx, site.ID, models.EventBulkSyncFinished, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.JSONEq(t, `{"inserted":3,"updated":0,"unchanged":1,"errors":1,"total":5,"feed_url":true,"sitemap_url":true}`, string(event.Payload))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestItemsTotal.WithLabelValues("feed", "added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestItemsTotal.WithLabelValues("sitemap", "unchanged")))

	reloaded, err := s.FindSiteByID(ctx, site.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastSyncedAt)
}

func TestRunSourceFailureFailsRequest(t *testing.T) {
	source := &stubSource{
		feed:       []models.ProductInput{{Title: "Mug", Price: "9.99", BuyURL: "/products/mug"}},
		sitemapErr: &apperrors.FetchError{URL: "https://x.com/sitemap.xml", StatusCode: 503, Body: "Service Unavailable"},
	}
	o, _, site, m := newOrchestrator(t, source)

	res, err := o.Run(context.Background(), Request{SiteID: site.ID, FeedURL: "https://x.com/feed.json", SitemapURL: "https://x.com/sitemap.xml"})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatusCode(err))
	assert.True(t, errors.Is(err, apperrors.ErrUpstreamFetch))
	assert.Contains(t, err.Error(), "Failed to fetch https://x.com/sitemap.xml: 503")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestRunsTotal.WithLabelValues("error")))
}

type chunkUpserter struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (u *chunkUpserter) Upsert(_ context.Context, _ string, in models.ProductInput) catalog.Outcome {
	u.mu.Lock()
	u.inFlight++
	u.peak = max(u.peak, u.inFlight)
	u.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	u.mu.Lock()
	u.inFlight--
	u.mu.Unlock()

	switch in.Title {
	case "panic":
		panic("upsert blew up")
	case "bad":
		return catalog.Outcome{Status: catalog.StatusError, Err: errors.New("bad")}
	}
	return catalog.Outcome{Status: catalog.StatusAdded}
}

func TestRunChunkedWithFailureIsolation(t *testing.T) {
	products := make([]models.ProductInput, 25)
	for i := range products {
		products[i] = models.ProductInput{Title: fmt.Sprintf("p%d", i), Price: "1"}
	}
	products[4].Title = "panic"
	products[17].Title = "bad"

	s, _ := storetest.Open(t)
	site := storetest.Site(t, s, "chunks.example.com")
	upserter := &chunkUpserter{}
	o := NewOrchestrator(&stubSource{feed: products}, upserter, s, events.NopEmitter{}, metrics.NewUnregistered(), logger.Nop(), 10)

	res, err := o.Run(context.Background(), Request{SiteID: site.ID, FeedURL: "https://x.com/feed.json"})
	require.NoError(t, err)
	assert.Equal(t, &Result{Inserted: 23, Errors: 2, Total: 25}, res)
	assert.LessOrEqual(t, upserter.peak, 10)
}

func TestRunAgainstHTTPFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"products":[
			{"title":"Mug","handle":"mug","variants":[{"price":"9.99"}]},
			{"title":"Cap","handle":"cap"}
		]}`))
	}))
	defer srv.Close()

	s, _ := storetest.Open(t)
	site := storetest.Site(t, s, "http.example.com")
	log := logger.Nop()
	svc := catalog.NewService(s, events.NopEmitter{}, cache.Noop{}, log)
	fetcher := feed.New(srv.Client(), log, 10, 500)
	o := NewOrchestrator(fetcher, svc, s, events.NopEmitter{}, metrics.NewUnregistered(), log, 10)

	res, err := o.Run(context.Background(), Request{SiteID: site.ID, FeedURL: srv.URL + "/products.json"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)

	res, err = o.Run(context.Background(), Request{SiteID: site.ID, FeedURL: srv.URL + "/products.json"})
	require.NoError(t, err)
	assert.Equal(t, &Result{Unchanged: 2, Total: 2}, res)
}

func TestTally(t *testing.T) {
	r := Tally([]catalog.Outcome{
		{Status: catalog.StatusAdded},
		{Status: catalog.StatusUpdated},
		{Status: catalog.StatusError},
	}, 5)
	assert.Equal(t, Result{Inserted: 1, Updated: 1, Errors: 3, Total: 5}, r)
}
