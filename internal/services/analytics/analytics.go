// Package analytics summarizes how AI agents interact with a site, derived
// from recorded sync events and the product catalog.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/models"
)

const day = 24 * time.Hour

type Store interface {
	FindSiteByID(ctx context.Context, id string) (*models.Site, error)
	CountProducts(ctx context.Context, siteID string) (int64, error)
	ListProducts(ctx context.Context, siteID string) ([]models.Product, error)
	ListEvents(ctx context.Context, siteID string, eventType models.EventType, since time.Time) ([]models.SyncEvent, error)
	LatestEvent(ctx context.Context, siteID string, eventType models.EventType, since time.Time) (*models.SyncEvent, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SiteStatus is the dashboard health card for a site.
type SiteStatus struct {
	ManifestValid     bool       `json:"manifest_valid"`
	ProductsCount     int64      `json:"products_count"`
	MissingSchema     bool       `json:"missing_schema"`
	LastManifestFetch *time.Time `json:"last_manifest_fetch"`
}

func (s *Service) requireSite(ctx context.Context, siteID string) error {
	if strings.TrimSpace(siteID) == "" {
		return apperrors.Validation("Missing site ID")
	}
	if _, err := s.store.FindSiteByID(ctx, siteID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("Invalid site_id: Site not found")
		}
		return err
	}
	return nil
}

// SiteStatus reports manifest and schema activity over the last 24 hours.
func (s *Service) SiteStatus(ctx context.Context, siteID string) (*SiteStatus, error) {
	if err := s.requireSite(ctx, siteID); err != nil {
		return nil, err
	}

	last, err := s.store.LatestEvent(ctx, siteID, models.EventManifestFetched, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to get last fetch time: %w", err)
	}
	count, err := s.store.CountProducts(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	missing, err := s.store.LatestEvent(ctx, siteID, models.EventSchemaMissing, s.now().Add(-day))
	if err != nil {
		return nil, fmt.Errorf("failed to check schema status: %w", err)
	}

	status := &SiteStatus{
		ProductsCount: count,
		MissingSchema: missing != nil,
	}
	if last != nil {
		fetched := last.CreatedAt.UTC()
		status.LastManifestFetch = &fetched
		status.ManifestValid = !fetched.Before(s.now().Add(-day))
	}
	return status, nil
}

type AgentVisits struct {
	AgentName  string `json:"agent_name"`
	VisitCount int    `json:"visit_count"`
}

type SchemaHealth struct {
	TotalPagesChecked int `json:"total_pages_checked"`
	PagesWithSchema   int `json:"pages_with_schema"`
	HealthScore       int `json:"health_score"`
}

type ManifestPerformance struct {
	AvgResponseTimeMs int `json:"avg_response_time_ms"`
	P95ResponseTimeMs int `json:"p95_response_time_ms"`
}

type DataFreshness struct {
	AvgProductAgeDays      int       `json:"avg_product_age_days"`
	OldestProductUpdatedAt time.Time `json:"oldest_product_updated_at"`
	ProductsUpdatedLast7d  int       `json:"products_updated_last_7d"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Summary is the analytics page payload.
type Summary struct {
	TimeRange                 string              `json:"time_range"`
	AgentInteractionCount     int                 `json:"agent_interaction_count"`
	AgentInteractionFrequency string              `json:"agent_interaction_frequency"`
	TopReferringAgents        []AgentVisits       `json:"top_referring_agents"`
	SchemaHealth              SchemaHealth        `json:"schema_health"`
	ManifestPerformance       ManifestPerformance `json:"manifest_performance"`
	DataFreshness             DataFreshness       `json:"data_freshness"`
	TotalProducts             int64               `json:"total_products"`
	DailyInteractions         []DailyCount        `json:"daily_interactions"`
}

// LookbackDays maps a timeRange query value to a window length. An empty
// value means 30 days; unrecognized values mean 90.
func LookbackDays(timeRange string) int {
	switch timeRange {
	case "7days":
		return 7
	case "", "30days":
		return 30
	default:
		return 90
	}
}

// eventPayload holds the fields analytics reads from manifest and schema
// events. ResponseTimeMs is left raw because clients send numbers or strings.
type eventPayload struct {
	URL            string          `json:"url"`
	UserAgent      string          `json:"user_agent"`
	ResponseTimeMs json.RawMessage `json:"response_time_ms"`
}

func decodePayload(e models.SyncEvent) eventPayload {
	var p eventPayload
	if len(e.Payload) > 0 {
		_ = json.Unmarshal(e.Payload, &p)
	}
	return p
}

func (s *Service) Summary(ctx context.Context, siteID, timeRange string) (*Summary, error) {
	if err := s.requireSite(ctx, siteID); err != nil {
		return nil, err
	}

	now := s.now()
	days := LookbackDays(timeRange)
	since := now.Add(-time.Duration(days) * day)

	fetches, err := s.store.ListEvents(ctx, siteID, models.EventManifestFetched, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch analytics data: %w", err)
	}
	missing, err := s.store.ListEvents(ctx, siteID, models.EventSchemaMissing, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema health data: %w", err)
	}
	products, err := s.store.ListProducts(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product details: %w", err)
	}

	fetchPayloads := make([]eventPayload, len(fetches))
	for i := range fetches {
		fetchPayloads[i] = decodePayload(fetches[i])
	}
	missingPayloads := make([]eventPayload, len(missing))
	for i := range missing {
		missingPayloads[i] = decodePayload(missing[i])
	}

	return &Summary{
		TimeRange:                 fmt.Sprintf("%ddays", days),
		AgentInteractionCount:     len(fetches),
		AgentInteractionFrequency: fmt.Sprintf("%.1f per day", float64(len(fetches))/float64(days)),
		TopReferringAgents:        topAgents(fetchPayloads, 5),
		SchemaHealth:              schemaHealth(fetchPayloads, missingPayloads),
		ManifestPerformance:       manifestPerformance(fetchPayloads),
		DataFreshness:             dataFreshness(products, now),
		TotalProducts:             int64(len(products)),
		DailyInteractions:         dailyInteractions(fetches, now, days),
	}, nil
}

// ClassifyAgent names the AI agent behind a user-agent string.
func ClassifyAgent(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Claude"):
		return "Claude"
	case strings.Contains(userAgent, "GPT"):
		return "ChatGPT"
	case strings.Contains(userAgent, "Google"):
		return "Google Assistant"
	case strings.Contains(userAgent, "Bing"):
		return "Bing Chat"
	default:
		return "Unknown Agent"
	}
}

func topAgents(payloads []eventPayload, limit int) []AgentVisits {
	counts := map[string]int{}
	for _, p := range payloads {
		if p.UserAgent == "" {
			continue
		}
		counts[ClassifyAgent(p.UserAgent)]++
	}

	agents := make([]AgentVisits, 0, len(counts))
	for name, n := range counts {
		agents = append(agents, AgentVisits{AgentName: name, VisitCount: n})
	}
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].VisitCount != agents[j].VisitCount {
			return agents[i].VisitCount > agents[j].VisitCount
		}
		return agents[i].AgentName < agents[j].AgentName
	})
	if len(agents) > limit {
		agents = agents[:limit]
	}

	if len(agents) == 0 {
		agents = append(agents, AgentVisits{AgentName: "Unknown Agents", VisitCount: len(payloads)})
	}
	return agents
}

func schemaHealth(fetches, missing []eventPayload) SchemaHealth {
	checked := map[string]bool{}
	for _, p := range fetches {
		if p.URL != "" {
			checked[p.URL] = true
		}
	}

	withoutSchema := map[string]bool{}
	for _, p := range missing {
		if checked[p.URL] {
			withoutSchema[p.URL] = true
		}
	}

	h := SchemaHealth{
		TotalPagesChecked: len(checked),
		PagesWithSchema:   len(checked) - len(withoutSchema),
		HealthScore:       100,
	}
	if h.TotalPagesChecked > 0 {
		h.HealthScore = int(math.Round(float64(h.PagesWithSchema) / float64(h.TotalPagesChecked) * 100))
	}
	return h
}

func manifestPerformance(payloads []eventPayload) ManifestPerformance {
	var samples []int
	for _, p := range payloads {
		if ms, ok := parseMillis(p.ResponseTimeMs); ok {
			samples = append(samples, ms)
		}
	}
	if len(samples) == 0 {
		return ManifestPerformance{}
	}

	total := 0
	for _, ms := range samples {
		total += ms
	}
	sort.Ints(samples)
	idx := int(math.Ceil(float64(len(samples))*0.95)) - 1
	if idx < 0 {
		idx = 0
	}

	return ManifestPerformance{
		AvgResponseTimeMs: int(math.Round(float64(total) / float64(len(samples)))),
		P95ResponseTimeMs: samples[idx],
	}
}

// parseMillis accepts 120, 120.7 or "120ms"-style values and truncates to
// whole milliseconds. Zero and unparseable values are not samples.
func parseMillis(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
	}
	text = strings.TrimSpace(text)

	end := 0
	for end < len(text) && (text[end] >= '0' && text[end] <= '9' || text[end] == '.' || (end == 0 && text[end] == '-')) {
		end++
	}
	f, err := strconv.ParseFloat(text[:end], 64)
	if err != nil || f == 0 {
		return 0, false
	}
	return int(f), true
}

func dataFreshness(products []models.Product, now time.Time) DataFreshness {
	f := DataFreshness{OldestProductUpdatedAt: now}
	if len(products) == 0 {
		return f
	}

	weekAgo := now.Add(-7 * day)
	totalAgeDays := 0
	for _, p := range products {
		if p.LastSyncedAt == nil {
			continue
		}
		synced := p.LastSyncedAt.UTC()
		totalAgeDays += int(now.Sub(synced) / day)
		if synced.Before(f.OldestProductUpdatedAt) {
			f.OldestProductUpdatedAt = synced
		}
		if !synced.Before(weekAgo) {
			f.ProductsUpdatedLast7d++
		}
	}
	f.AvgProductAgeDays = int(math.Round(float64(totalAgeDays) / float64(len(products))))
	return f
}

func dailyInteractions(events []models.SyncEvent, now time.Time, days int) []DailyCount {
	perDay := map[string]int{}
	for _, e := range events {
		perDay[e.CreatedAt.UTC().Format(time.DateOnly)]++
	}

	out := make([]DailyCount, 0, days)
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -(days - i - 1)).Format(time.DateOnly)
		out = append(out, DailyCount{Date: date, Count: perDay[date]})
	}
	return out
}
