package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"researchcopilot/pkg/agent/middleware/resilience/retry"
	"researchcopilot/pkg/config"
	"researchcopilot/pkg/logx"
	"researchcopilot/pkg/utils"
)

const snippetLimit = 400

// SearchQuery is a backend-neutral search request.
type SearchQuery struct {
	Query          string
	MaxResults     int
	IncludeDomains []string
	ExcludeDomains []string
	Days           int
}

// SearchHit is one raw backend result before filtering and dedupe.
type SearchHit struct {
	URL     string
	Title   string
	Content string
	Score   float64
}

// SearchProvider defines the interface for web search backends.
type SearchProvider interface {
	// Name returns the backend name reported in results.
	Name() string
	// Search returns raw hits and the name of the backend that served them.
	Search(ctx context.Context, q *SearchQuery) ([]SearchHit, string, error)
}

// SearchResult is one deduplicated web search result.
type SearchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// WebSearchOutput is the web_search payload.
type WebSearchOutput struct {
	Results   []SearchResult `json:"results"`
	LatencyMS int64          `json:"latency_ms"`
	Backend   string         `json:"backend"`
}

type webSearchInput struct {
	Q           string   `json:"q"`
	K           int      `json:"k"`
	SiteAllow   []string `json:"site_allow"`
	SiteBlock   []string `json:"site_block"`
	RecencyDays int      `json:"recency_days"`
}

func webSearchInputSchema() *jsonschema.Schema {
	return objectSchema([]string{"q"}, map[string]*jsonschema.Schema{
		"q":            requiredString("Natural language query."),
		"k":            intRange("Number of results after dedupe.", 1, 10, intPtr(5)),
		"site_allow":   stringList("Only keep results from these domains."),
		"site_block":   stringList("Drop results from these domains."),
		"recency_days": intRange("Restrict to results from the last N days.", 1, 0, nil),
	})
}

func webSearchOutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"results", "latency_ms", "backend"}, map[string]*jsonschema.Schema{
		"results": arrayOf(objectSchema([]string{"url", "title"}, map[string]*jsonschema.Schema{
			"url":     typed("string"),
			"title":   typed("string"),
			"snippet": typed("string"),
			"score":   typed("number"),
		})),
		"latency_ms": typed("integer"),
		"backend":    typed("string"),
	})
}

// WebSearch searches the web through the configured backend and dedupes by domain.
type WebSearch struct {
	provider  SearchProvider
	configErr error
	logger    *logx.Logger
}

// NewWebSearchWithProvider creates a web search capability over a specific backend.
func NewWebSearchWithProvider(provider SearchProvider) *WebSearch {
	return &WebSearch{provider: provider, logger: logx.NewLogger(ToolWebSearch)}
}

// newWebSearch selects the backend: explicit override, then REST credentials, then
// the MCP endpoint. With no backend the capability still registers and every call
// fails naming the missing configuration.
func newWebSearch(deps *Deps) (Capability, error) {
	plan, err := config.DetectSearchBackend(&deps.Search)
	if err != nil {
		return &WebSearch{configErr: err, logger: logx.NewLogger(ToolWebSearch)}, nil
	}

	mcpProvider := func() SearchProvider {
		return NewMCPSearchProvider(deps.Search.MCPURL)
	}

	var provider SearchProvider
	switch plan.Primary {
	case config.SearchBackendMCP:
		provider = mcpProvider()
	default:
		provider = NewTavilyRESTProvider(deps.httpClient(), deps.policy(), deps.Search.TavilyAPIKey, deps.Search.RESTEndpoints, deps.Search.Timeout)
		if plan.FallbackToMCP {
			provider = NewFallbackSearchProvider(provider, mcpProvider())
		}
	}
	return NewWebSearchWithProvider(provider), nil
}

// Name returns the capability name.
func (w *WebSearch) Name() string {
	return ToolWebSearch
}

// Invoke runs the search.
func (w *WebSearch) Invoke(ctx context.Context, input map[string]any) (any, error) {
	if w.configErr != nil {
		return nil, permanent(ToolWebSearch, w.configErr)
	}

	var in webSearchInput
	if err := decodeInput(input, &in); err != nil {
		return nil, permanent(ToolWebSearch, err)
	}
	in.Q = strings.TrimSpace(in.Q)
	if in.Q == "" {
		return nil, permanent(ToolWebSearch, ErrEmptyQuery)
	}

	start := time.Now()
	hits, backend, err := w.provider.Search(ctx, &SearchQuery{
		Query:          in.Q,
		MaxResults:     overFetch(in.K),
		IncludeDomains: in.SiteAllow,
		ExcludeDomains: in.SiteBlock,
		Days:           in.RecencyDays,
	})
	if err != nil {
		return nil, err
	}

	results := assembleResults(hits, in.SiteAllow, in.SiteBlock, in.K)
	w.logger.Debug("query %q: %d raw hits, %d results via %s", in.Q, len(hits), len(results), backend)
	return WebSearchOutput{
		Results:   results,
		LatencyMS: time.Since(start).Milliseconds(),
		Backend:   backend,
	}, nil
}

// overFetch asks backends for three times the wanted count, within 1..20, so
// dedupe still leaves k results.
func overFetch(k int) int {
	return max(1, min(k*3, 20))
}

func assembleResults(hits []SearchHit, allow, block []string, k int) []SearchResult {
	kept := make([]SearchHit, 0, len(hits))
	for i := range hits {
		if hits[i].URL == "" || !domainAllowed(hits[i].URL, allow, block) {
			continue
		}
		kept = append(kept, hits[i])
	}
	kept = DedupeByDomain(kept, func(h SearchHit) string { return h.URL }, k)

	results := make([]SearchResult, 0, len(kept))
	for i := range kept {
		title := kept[i].Title
		if title == "" {
			title = kept[i].URL
		}
		results = append(results, SearchResult{
			URL:     kept[i].URL,
			Title:   title,
			Snippet: clip(kept[i].Content, snippetLimit),
			Score:   kept[i].Score,
		})
	}
	return results
}

// hitsFromRecords converts normalized {url,title,content,score} records.
func hitsFromRecords(records []map[string]any) []SearchHit {
	hits := make([]SearchHit, 0, len(records))
	for _, rec := range records {
		score, _ := utils.ToFloat(rec["score"])
		hits = append(hits, SearchHit{
			URL:     utils.FirstString(rec, "url"),
			Title:   utils.FirstString(rec, "title"),
			Content: utils.FirstString(rec, "content", "snippet"),
			Score:   score,
		})
	}
	return hits
}

// =============================================================================
// Tavily REST provider
// =============================================================================

// TavilyRESTProvider implements SearchProvider over the Tavily REST API.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type TavilyRESTProvider struct {
	httpClient *http.Client
	policy     *retry.Policy
	apiKey     string
	endpoints  []string
	timeout    time.Duration
}

// NewTavilyRESTProvider creates a REST provider trying endpoints in order.
func NewTavilyRESTProvider(client *http.Client, policy *retry.Policy, apiKey string, endpoints []string, timeout time.Duration) *TavilyRESTProvider {
	if len(endpoints) == 0 {
		endpoints = []string{"https://api.tavily.com/search", "https://api.tavily.com/query"}
	}
	return &TavilyRESTProvider{
		httpClient: client,
		policy:     policy,
		apiKey:     apiKey,
		endpoints:  endpoints,
		timeout:    timeout,
	}
}

// Name returns the provider name.
func (p *TavilyRESTProvider) Name() string {
	return config.SearchBackendREST
}

// Search posts the query to each endpoint until one answers.
func (p *TavilyRESTProvider) Search(ctx context.Context, q *SearchQuery) ([]SearchHit, string, error) {
	payload := map[string]any{
		"api_key":        p.apiKey,
		"query":          q.Query,
		"max_results":    q.MaxResults,
		"search_depth":   "basic",
		"include_answer": false,
	}
	if len(q.IncludeDomains) > 0 {
		payload["include_domains"] = q.IncludeDomains
	}
	if len(q.ExcludeDomains) > 0 {
		payload["exclude_domains"] = q.ExcludeDomains
	}
	if q.Days > 0 {
		payload["days"] = q.Days
	}

	calls := make([]*jsonCall, 0, len(p.endpoints))
	for _, endpoint := range p.endpoints {
		calls = append(calls, &jsonCall{
			Op:      "tavily_rest",
			Method:  http.MethodPost,
			URL:     endpoint,
			Body:    payload,
			Timeout: p.timeout,
		})
	}

	doc, err := fetchFirstJSON(ctx, p.httpClient, p.policy, calls)
	if err != nil {
		return nil, p.Name(), fmt.Errorf("tavily REST failed: %w", err)
	}
	match, ok := searchShapes.match(ctx, "tavily_rest", doc)
	if !ok {
		logx.Debug(ctx, "shapes", "tavily_rest: ParseDegradation: no known layout")
		return nil, p.Name(), nil
	}
	return hitsFromRecords(match.Records), p.Name(), nil
}

// =============================================================================
// Fallback provider
// =============================================================================

// FallbackSearchProvider tries the secondary backend once when the primary fails.
type FallbackSearchProvider struct {
	primary   SearchProvider
	secondary SearchProvider
	logger    *logx.Logger
}

// NewFallbackSearchProvider chains two providers.
func NewFallbackSearchProvider(primary, secondary SearchProvider) *FallbackSearchProvider {
	return &FallbackSearchProvider{primary: primary, secondary: secondary, logger: logx.NewLogger(ToolWebSearch)}
}

// Name returns the primary provider name.
func (p *FallbackSearchProvider) Name() string {
	return p.primary.Name()
}

// Search uses the primary provider, falling back on any error.
func (p *FallbackSearchProvider) Search(ctx context.Context, q *SearchQuery) ([]SearchHit, string, error) {
	hits, backend, err := p.primary.Search(ctx, q)
	if err == nil {
		return hits, backend, nil
	}
	if ctx.Err() != nil {
		return nil, backend, err
	}
	p.logger.Warn("%s backend failed, falling back to %s: %v", p.primary.Name(), p.secondary.Name(), err)
	return p.secondary.Search(ctx, q)
}
