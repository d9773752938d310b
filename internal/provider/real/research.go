package real

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/adapter/ratelimit"
	"github.com/clipforge/clipforge/internal/adapter/vector/qdrant"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/provider"
)

// Research is a real domain.ResearchAdapter: it scrapes competitor videos
// from an external trend-research API and caches results in Qdrant keyed by
// a cheap hash-based vector, so repeated queries for the same product/niche
// within the cache TTL skip the external call (spec §4.4).
type Research struct {
	c          *caller
	chat       *Script
	apiKey     string
	qdrant     *qdrant.Client
	collection string
}

// NewResearch constructs a real research adapter. chatAdapter is used to
// turn the scraped videos into a prose trend summary (Analyze); it may be
// nil, in which case Analyze falls back to a templated summary.
func NewResearch(cfg config.Config, cb *provider.CircuitBreaker, lim ratelimit.Limiter, chatAdapter *Script) *Research {
	var qc *qdrant.Client
	if cfg.QdrantURL != "" {
		qc = qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey)
	}
	return &Research{
		c:          newCaller("research", cfg, cb, lim, 45*time.Second),
		chat:       chatAdapter,
		apiKey:     cfg.ResearchAPIKey,
		qdrant:     qc,
		collection: cfg.ResearchCacheCollection,
	}
}

type researchSearchRequest struct {
	Query    string `json:"query"`
	MinViews int64  `json:"min_views"`
	Category string `json:"category"`
}

type researchSearchResponse struct {
	Videos []struct {
		URL      string `json:"url"`
		Caption  string `json:"caption"`
		Views    int64  `json:"views"`
		Category string `json:"category"`
	} `json:"videos"`
}

// Search first checks the Qdrant cache for an identical query/category
// pair, falling back to the live scraping API on a cache miss.
func (r *Research) Search(ctx domain.Context, query string, minViews int64, category string) ([]domain.ResearchVideo, error) {
	cacheKey := query + "|" + category
	if videos, ok := r.searchCache(ctx, cacheKey); ok {
		return videos, nil
	}
	if strings.TrimSpace(r.apiKey) == "" {
		return nil, fmt.Errorf("%w: RESEARCH_API_KEY missing", domain.ErrInvalidArgument)
	}
	var resp researchSearchResponse
	headers := map[string]string{"Authorization": "Bearer " + r.apiKey}
	req := researchSearchRequest{Query: query, MinViews: minViews, Category: category}
	if err := r.c.doJSON(ctx, "search", "POST", r.c.cfg.ResearchBaseURL+"/search", headers, req, &resp); err != nil {
		return nil, err
	}
	videos := make([]domain.ResearchVideo, 0, len(resp.Videos))
	for _, v := range resp.Videos {
		videos = append(videos, domain.ResearchVideo{URL: v.URL, Caption: v.Caption, Views: v.Views, Category: v.Category})
	}
	r.cacheResult(ctx, cacheKey, videos)
	return videos, nil
}

// Analyze summarizes the scraped videos into a trend narrative, delegating
// to the script model when available.
func (r *Research) Analyze(ctx domain.Context, videos []domain.ResearchVideo, query string) (string, error) {
	if r.chat == nil {
		return templatedAnalysis(videos, query), nil
	}
	var captions strings.Builder
	for _, v := range videos {
		fmt.Fprintf(&captions, "- %q (%d views)\n", v.Caption, v.Views)
	}
	sys := "You analyze short-form video ad trends. Given a list of competitor video captions and view counts, summarize the winning hooks and visual patterns in 2-3 sentences."
	user := fmt.Sprintf("Query: %s\nVideos:\n%s", query, captions.String())
	summary, err := r.chat.chat(ctx, "analyze_trends", sys, user, 300)
	if err != nil {
		slog.Warn("research analyze fell back to template", slog.Any("error", err))
		return templatedAnalysis(videos, query), nil
	}
	return summary, nil
}

func templatedAnalysis(videos []domain.ResearchVideo, query string) string {
	return fmt.Sprintf("Found %d competitor videos for %q; favor short, high-retention hooks in the first 2 seconds.", len(videos), query)
}

func (r *Research) searchCache(ctx domain.Context, key string) ([]domain.ResearchVideo, bool) {
	if r.qdrant == nil {
		return nil, false
	}
	results, err := r.qdrant.Search(ctx, r.collection, cacheVector(key), 1)
	if err != nil || len(results) == 0 {
		return nil, false
	}
	payload := results[0]
	cachedAt, _ := payload["cached_at"].(float64)
	if time.Since(time.Unix(int64(cachedAt), 0)) > 24*time.Hour {
		return nil, false
	}
	rawVideos, ok := payload["videos"].([]any)
	if !ok {
		return nil, false
	}
	videos := make([]domain.ResearchVideo, 0, len(rawVideos))
	for _, raw := range rawVideos {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		videos = append(videos, domain.ResearchVideo{
			URL:      fmt.Sprint(m["url"]),
			Caption:  fmt.Sprint(m["caption"]),
			Views:    int64Of(m["views"]),
			Category: fmt.Sprint(m["category"]),
		})
	}
	return videos, true
}

func (r *Research) cacheResult(ctx domain.Context, key string, videos []domain.ResearchVideo) {
	if r.qdrant == nil {
		return
	}
	if err := r.qdrant.EnsureCollection(ctx, r.collection, 8, "Cosine"); err != nil {
		slog.Warn("failed to ensure research cache collection", slog.Any("error", err))
		return
	}
	raw := make([]map[string]any, 0, len(videos))
	for _, v := range videos {
		raw = append(raw, map[string]any{"url": v.URL, "caption": v.Caption, "views": v.Views, "category": v.Category})
	}
	payload := map[string]any{"key": key, "videos": raw, "cached_at": time.Now().Unix()}
	if err := r.qdrant.UpsertPoints(ctx, r.collection, [][]float32{cacheVector(key)}, []map[string]any{payload}, nil); err != nil {
		slog.Warn("failed to cache research result", slog.Any("error", err))
	}
}

// cacheVector derives a deterministic 8-dimensional pseudo-embedding from a
// cache key so identical queries land on the same point without a real
// embedding model.
func cacheVector(key string) []float32 {
	h := sha1.Sum([]byte(key))
	out := make([]float32, 8)
	for i := range out {
		out[i] = float32(binary.BigEndian.Uint16(h[i*2:i*2+2])) / float32(65535)
	}
	return out
}

func int64Of(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}

var _ domain.ResearchAdapter = (*Research)(nil)
