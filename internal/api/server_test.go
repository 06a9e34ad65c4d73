package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/services/analytics"
	"storefront/internal/services/catalog"
	"storefront/internal/services/events"
	"storefront/internal/services/feed"
	"storefront/internal/services/ingest"
	"storefront/internal/services/manifest"
	"storefront/internal/store"
	"storefront/internal/store/storetest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	store  *store.Store
	site   *models.Site
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithSource(t, nil)
}

// newTestEnvWithSource builds the router with source feeding bulk syncs in
// place of the HTTP fetcher when it is non-nil.
func newTestEnvWithSource(t *testing.T, source ingest.Source) *testEnv {
	t.Helper()

	s, _ := storetest.Open(t)
	site := storetest.Site(t, s, "shop.example.com")
	log := logger.Nop()
	m := metrics.NewUnregistered()

	recorder := events.NewRecorder(s, log)
	emitter := events.NewDirectEmitter(recorder, log)
	svc := catalog.NewService(s, emitter, cache.Noop{}, log)
	fetcher := feed.New(http.DefaultClient, log, 10, 500)
	if source == nil {
		source = fetcher
	}

	cfg := &config.Config{CORSAllowedOrigins: "*", Env: "test", StoreName: "Test Store"}
	srv := New(cfg, log, Deps{
		Ingester:  ingest.NewOrchestrator(source, svc, s, emitter, m, log, 10),
		Catalog:   svc,
		Pages:     fetcher,
		Recorder:  recorder,
		Reporter:  analytics.NewService(s),
		Manifests: manifest.NewService(s, cache.Noop{}, m, log, manifest.Options{StoreName: cfg.StoreName}),
		Metrics:   m,
		Ping:      func(context.Context) error { return nil },
	})

	return &testEnv{router: srv.Router(), store: s, site: site}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var decoded map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func TestProductsAdd(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/products/add", map[string]any{
		"site_id": env.site.ID, "title": "Mug", "price": "9.99", "buy_url": "/products/mug",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Product added", body["message"])
	product := body["product"].(map[string]any)
	productID := product["id"].(string)

	w, body = env.do(t, http.MethodPost, "/api/products/add", map[string]any{
		"site_id": env.site.ID, "title": "Mug", "price": 9.99, "buy_url": "/products/mug",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Product already exists", body["message"])
	assert.Equal(t, productID, body["product_id"])

	w, body = env.do(t, http.MethodPost, "/api/products/add", map[string]any{
		"site_id": env.site.ID, "title": "Mug", "price": 11, "buy_url": "/products/mug",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Product updated", body["message"])
	assert.Equal(t, map[string]any{"title": false, "price": true}, body["changes"])

	w, body = env.do(t, http.MethodPost, "/api/products/add", map[string]any{"site_id": env.site.ID, "title": "Mug"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields", body["error"])

	w, _ = env.do(t, http.MethodPost, "/api/products/add", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkSync(t *testing.T) {
	env := newTestEnv(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed.json":
			_, _ = w.Write([]byte(`[{"name":"Lamp","price":"20","url":"/lamp"},{"name":"","price":"1"}]`))
		case "/sitemap.xml":
			fmt.Fprintf(w, `<urlset><url><loc>http://%s/products/mug</loc></url><url><loc>http://%s/about</loc></url></urlset>`, r.Host, r.Host)
		case "/products/mug.json":
			_, _ = w.Write([]byte(`{"product":{"title":"Mug","handle":"mug","variants":[{"price":"9.99"}]}}`))
		default:
			http.Error(w, "missing", http.StatusNotFound)
		}
	}))
	defer upstream.Close()

	w, body := env.do(t, http.MethodPost, "/api/bulk-sync", map[string]any{
		"site_id":     env.site.ID,
		"feed_url":    upstream.URL + "/feed.json",
		"sitemap_url": upstream.URL + "/sitemap.xml",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]any{
		"inserted": 2.0, "updated": 0.0, "unchanged": 0.0, "errors": 1.0, "total": 3.0,
	}, body)

	w, body = env.do(t, http.MethodPost, "/api/bulk-sync", map[string]any{"site_id": env.site.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Either feed_url or sitemap_url is required", body["error"])

	w, body = env.do(t, http.MethodPost, "/api/bulk-sync", map[string]any{"feed_url": upstream.URL + "/feed.json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing site_id", body["error"])

	w, body = env.do(t, http.MethodPost, "/api/bulk-sync", map[string]any{
		"site_id": "00000000-0000-4000-8000-000000000000", "feed_url": upstream.URL + "/feed.json",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Invalid site_id: Site not found", body["error"])

	w, body = env.do(t, http.MethodPost, "/api/bulk-sync", map[string]any{
		"site_id": env.site.ID, "feed_url": upstream.URL + "/gone.json",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["error"], "Internal server error: ")
	assert.Contains(t, body["error"], "404")
}

// hangUpSource cancels the caller's request while the feed is being read.
type hangUpSource struct {
	cancel   context.CancelFunc
	products []models.ProductInput
}

func (s *hangUpSource) FetchFeed(ctx context.Context, _ string) ([]models.ProductInput, error) {
	s.cancel()
	return s.products, nil
}

func (s *hangUpSource) FetchSitemapProducts(context.Context, string) ([]models.ProductInput, error) {
	return nil, nil
}

func TestBulkSyncSurvivesClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &hangUpSource{cancel: cancel, products: []models.ProductInput{
		{Title: "Mug", Price: "9.99", BuyURL: "/products/mug"},
		{Title: "Lamp", Price: "20.00", BuyURL: "/products/lamp"},
	}}
	env := newTestEnvWithSource(t, source)

	raw, err := json.Marshal(map[string]any{"site_id": env.site.ID, "feed_url": "https://shop.example.com/products.json"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/bulk-sync", bytes.NewReader(raw)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"inserted":2,"updated":0,"unchanged":0,"errors":0,"total":2}`, w.Body.String())

	stored, err := env.store.ListProducts(context.Background(), env.site.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	finished, err := env.store.LatestEvent(context.Background(), env.site.ID, models.EventBulkSyncFinished, time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, finished)
}

func TestMalformedSiteIDIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/bulk-sync", map[string]any{
		"site_id": "not-a-uuid", "feed_url": "https://shop.example.com/products.json",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Invalid site_id: Site not found", body["error"])

	w, _ = env.do(t, http.MethodGet, "/api/site-status/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/metrics/record", map[string]any{
		"site_id": "not-a-uuid", "event_type": "manifest_fetched",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterSiteAndAgents(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/register-site", map[string]any{"domain": "new.example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	siteID := body["site_id"].(string)
	assert.NotEmpty(t, siteID)

	w, body = env.do(t, http.MethodPost, "/api/register-site", map[string]any{"domain": "new.example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, siteID, body["site_id"])

	w, body = env.do(t, http.MethodPost, "/api/register-site", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing domain", body["error"])

	req := httptest.NewRequest(http.MethodGet, "/.well-known/agents.json", nil)
	req.Host = "new.example.com"
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"manifest_url":"https://new.example.com/api/manifest/%s"}`, siteID), rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/.well-known/agents.json", nil)
	req.Host = "nobody.example.com"
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Site not found for this domain."}`, rec.Body.String())
}

func TestManifestEventsAndStatus(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/api/products/add", map[string]any{
		"site_id": env.site.ID, "title": "Mug", "price": "9.99", "buy_url": "/products/mug",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/manifest/"+env.site.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"store_name":"Test Store","products":[
		{"title":"Mug","price":9.99,"description":null,"image_url":null,"buy_url":"/products/mug"}
	]}`, w.Body.String())

	w, body := env.do(t, http.MethodPost, "/api/metrics/record", map[string]any{
		"site_id":    env.site.ID,
		"event_type": "manifest_fetched",
		"payload":    map[string]any{"url": "https://shop.example.com/products/mug", "user_agent": "ClaudeBot"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Event recorded", body["message"])

	w, body = env.do(t, http.MethodPost, "/api/metrics/record", map[string]any{"site_id": env.site.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields: site_id and event_type are required", body["error"])

	w, body = env.do(t, http.MethodPost, "/api/metrics/record", map[string]any{
		"site_id": "00000000-0000-4000-8000-000000000000", "event_type": "manifest_fetched",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Invalid site_id: site does not exist", body["error"])

	w, body = env.do(t, http.MethodGet, "/api/site-status/"+env.site.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["manifest_valid"])
	assert.Equal(t, 1.0, body["products_count"])
	assert.Equal(t, false, body["missing_schema"])
	assert.NotNil(t, body["last_manifest_fetch"])

	w, body = env.do(t, http.MethodGet, "/api/analytics/"+env.site.ID+"?timeRange=7days", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, body["agent_interaction_count"])
	assert.Len(t, body["daily_interactions"], 7)

	w, _ = env.do(t, http.MethodGet, "/api/analytics/00000000-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProductsExtract(t *testing.T) {
	env := newTestEnv(t)

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/empty" {
			_, _ = w.Write([]byte(`<html><body><p>Nothing here</p></body></html>`))
			return
		}
		_, _ = w.Write([]byte(`<html><head>
<meta property="og:title" content="Desk Lamp">
<meta property="product:price:amount" content="$49.00">
</head><body></body></html>`))
	}))
	defer page.Close()

	w, body := env.do(t, http.MethodPost, "/api/products/extract", map[string]any{
		"site_id": env.site.ID, "page_url": page.URL + "/products/lamp",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Product added", body["message"])
	product := body["product"].(map[string]any)
	assert.Equal(t, "Desk Lamp", product["title"])
	assert.Equal(t, 49.0, product["price"])
	assert.Equal(t, page.URL+"/products/lamp", product["buy_url"])

	w, _ = env.do(t, http.MethodPost, "/api/products/extract", map[string]any{
		"site_id": env.site.ID, "page_url": page.URL + "/empty",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/products/extract", map[string]any{"site_id": env.site.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, _ = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `storefront_http_requests_total{method="GET",route="/healthz",status="200"} 1`)

	req := httptest.NewRequest(http.MethodOptions, "/api/products/add", nil)
	req.Header.Set("Origin", "https://merchant.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
