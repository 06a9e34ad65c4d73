// Package feed retrieves remote product feeds and sitemaps and turns them
// into canonical product records.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"storefront/internal/apperrors"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/services/batch"
	"storefront/internal/services/shopify"
)

const (
	// DefaultMaxItems caps how many products or URLs one source contributes.
	DefaultMaxItems = 500

	maxBodyBytes  = 20 << 20
	maxErrorBytes = 512
	userAgent     = "StorefrontSync/1.0"
)

type Fetcher struct {
	client   *http.Client
	logger   *logger.Logger
	width    int
	maxItems int
	maxBody  int64
}

func New(client *http.Client, logger *logger.Logger, width, maxItems int) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if width <= 0 {
		width = batch.DefaultWidth
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Fetcher{
		client:   client,
		logger:   logger,
		width:    width,
		maxItems: maxItems,
		maxBody:  maxBodyBytes,
	}
}

// Fetch performs a GET and returns the body of a 2xx response. Other
// statuses produce an *apperrors.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %w", apperrors.ErrUpstreamFetch, url, err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrUpstreamFetch, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		body := strings.TrimSpace(string(snippet))
		if body == "" {
			body = http.StatusText(resp.StatusCode)
		}
		return nil, &apperrors.FetchError{URL: url, StatusCode: resp.StatusCode, Body: body}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", apperrors.ErrUpstreamFetch, url, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("%w: %s: response body exceeds %d bytes", apperrors.ErrUpstreamFetch, url, f.maxBody)
	}
	return body, nil
}

// FetchJSON fetches url and checks that the body is JSON.
func (f *Fetcher) FetchJSON(ctx context.Context, url string) (json.RawMessage, error) {
	body, err := f.Fetch(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &apperrors.ParseError{Message: fmt.Sprintf("Invalid JSON from %s", url)}
	}
	return json.RawMessage(body), nil
}

func (f *Fetcher) FetchXML(ctx context.Context, url string) ([]byte, error) {
	return f.Fetch(ctx, url, "application/xml, text/xml")
}

func (f *Fetcher) FetchHTML(ctx context.Context, url string) ([]byte, error) {
	return f.Fetch(ctx, url, "text/html")
}

// FetchFeed fetches a JSON product feed and normalizes its items.
func (f *Fetcher) FetchFeed(ctx context.Context, url string) ([]models.ProductInput, error) {
	body, err := f.FetchJSON(ctx, url)
	if err != nil {
		return nil, err
	}

	products, err := ParseFeed(body, f.maxItems)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Fetched feed %s: %d products", url, len(products))
	return products, nil
}

// FetchSitemapProducts walks a sitemap, fetches every product page as
// JSON and normalizes the results. Product pages that fail to fetch or
// decode are skipped.
func (f *Fetcher) FetchSitemapProducts(ctx context.Context, url string) ([]models.ProductInput, error) {
	urls, err := f.sitemapProductURLs(ctx, url)
	if err != nil {
		return nil, err
	}

	if len(urls) > f.maxItems {
		urls = urls[:f.maxItems]
	}

	jsonURLs := make([]string, len(urls))
	for i, u := range urls {
		jsonURLs[i] = ProductJSONURL(u)
	}

	products := batch.Run(ctx, f.logger, jsonURLs, f.width, f.fetchProduct)

	f.logger.Info("Fetched sitemap %s: %d product urls, %d products", url, len(jsonURLs), len(products))
	return products, nil
}

func (f *Fetcher) sitemapProductURLs(ctx context.Context, url string) ([]string, error) {
	body, err := f.FetchXML(ctx, url)
	if err != nil {
		return nil, err
	}

	sitemap, err := ParseSitemap(body)
	if err != nil {
		return nil, err
	}

	switch sitemap.Kind {
	case KindURLSet:
		return ProductURLs(sitemap.URLs), nil
	case KindIndex:
		for _, child := range sitemap.Children {
			if !strings.Contains(child, "product") {
				continue
			}

			childBody, err := f.FetchXML(ctx, child)
			if err != nil {
				return nil, err
			}
			childSitemap, err := ParseSitemap(childBody)
			if err != nil {
				return nil, err
			}
			if childSitemap.Kind == KindURLSet {
				return ProductURLs(childSitemap.URLs), nil
			}
		}
	}

	return []string{}, nil
}

func (f *Fetcher) fetchProduct(ctx context.Context, url string) (models.ProductInput, error) {
	body, err := f.FetchJSON(ctx, url)
	if err != nil {
		return models.ProductInput{}, err
	}

	var envelope shopify.ProductEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return models.ProductInput{}, &apperrors.ParseError{Message: fmt.Sprintf("Invalid product JSON from %s", url), Err: err}
	}
	if envelope.Product == nil {
		return models.ProductInput{}, &apperrors.ParseError{Message: fmt.Sprintf("No product in %s", url)}
	}

	return shopify.Normalize(envelope.Product), nil
}
