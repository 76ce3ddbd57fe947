package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"researchcopilot/pkg/agent/middleware/resilience/retry"
	"researchcopilot/pkg/utils"
)

const (
	abstractLimit = 2000
	ntrsUntitled  = "(untitled)"
)

// NTRSItem is one normalized report citation.
type NTRSItem struct {
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	NASAID   string   `json:"nasa_id,omitempty"`
	Year     *int     `json:"year,omitempty"`
	Abstract string   `json:"abstract"`
	Authors  []string `json:"authors"`
}

// NTRSSearchOutput is the ntrs_search payload.
type NTRSSearchOutput struct {
	Results   []NTRSItem `json:"results"`
	Total     int        `json:"total"`
	LatencyMS int64      `json:"latency_ms"`
}

type ntrsSearchInput struct {
	Q        string `json:"q"`
	K        int    `json:"k"`
	YearFrom int    `json:"year_from"`
	YearTo   int    `json:"year_to"`
	Sort     string `json:"sort"`
}

func ntrsInputSchema() *jsonschema.Schema {
	return objectSchema([]string{"q"}, map[string]*jsonschema.Schema{
		"q":         requiredString("Query string for NASA Technical Reports Server."),
		"k":         intRange("Number of results.", 1, 20, intPtr(5)),
		"year_from": intRange("Inclusive lower bound on publication year.", 0, 0, nil),
		"year_to":   intRange("Inclusive upper bound on publication year.", 0, 0, nil),
		"sort":      enumProp("One of: 'relevance' or 'date'.", "relevance", "relevance", "date"),
	})
}

func ntrsOutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"results", "total", "latency_ms"}, map[string]*jsonschema.Schema{
		"results": arrayOf(objectSchema([]string{"title", "url", "abstract", "authors"}, map[string]*jsonschema.Schema{
			"title":    typed("string"),
			"url":      typed("string"),
			"nasa_id":  typed("string"),
			"year":     nullable("integer"),
			"abstract": typed("string"),
			"authors":  arrayOf(typed("string")),
		})),
		"total":      typed("integer"),
		"latency_ms": typed("integer"),
	})
}

// NTRSSearch queries the NASA Technical Reports Server citation API.
type NTRSSearch struct {
	httpClient *http.Client
	policy     *retry.Policy
	baseURL    string
	userAgent  string
}

func newNTRSSearch(deps *Deps) (Capability, error) {
	base := strings.TrimRight(deps.Sources.NTRSBaseURL, "/")
	if base == "" {
		base = "https://ntrs.nasa.gov"
	}
	return &NTRSSearch{
		httpClient: deps.httpClient(),
		policy:     deps.policy(),
		baseURL:    base,
		userAgent:  deps.userAgent(),
	}, nil
}

// Name returns the capability name.
func (s *NTRSSearch) Name() string {
	return ToolNTRSSearch
}

// Invoke searches, normalizes whichever response layout the API returned and takes the top k.
func (s *NTRSSearch) Invoke(ctx context.Context, input map[string]any) (any, error) {
	var in ntrsSearchInput
	if err := decodeInput(input, &in); err != nil {
		return nil, permanent(ToolNTRSSearch, err)
	}
	in.Q = strings.TrimSpace(in.Q)
	if in.Q == "" {
		return nil, permanent(ToolNTRSSearch, ErrEmptyQuery)
	}

	start := time.Now()
	doc, err := fetchFirstJSON(ctx, s.httpClient, s.policy, s.calls(&in))
	if err != nil {
		return nil, fmt.Errorf("NTRS search failed: %w", err)
	}

	items, total := s.normalize(ctx, doc)
	if in.Sort == "date" {
		sortByYearDesc(items)
	}
	if len(items) > in.K {
		items = items[:in.K]
	}

	return NTRSSearchOutput{
		Results:   items,
		Total:     total,
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}

// calls builds the POST search endpoint followed by the GET listing endpoint.
func (s *NTRSSearch) calls(in *ntrsSearchInput) []*jsonCall {
	size := max(1, min(in.K*3, 50))
	sortKey := "relevance"
	if in.Sort == "date" {
		sortKey = "pub_date"
	}
	headers := map[string]string{"User-Agent": s.userAgent}

	filters := map[string]any{}
	query := url.Values{}
	query.Set("q", in.Q)
	query.Set("page", "1")
	query.Set("size", strconv.Itoa(size))
	query.Set("sort", sortKey)
	if in.YearFrom > 0 {
		filters["yearStart"] = in.YearFrom
		query.Set("yearStart", strconv.Itoa(in.YearFrom))
	}
	if in.YearTo > 0 {
		filters["yearEnd"] = in.YearTo
		query.Set("yearEnd", strconv.Itoa(in.YearTo))
	}

	return []*jsonCall{
		{
			Op:      ToolNTRSSearch,
			Method:  http.MethodPost,
			URL:     s.baseURL + "/api/citations/search",
			Body:    map[string]any{"q": in.Q, "page": 1, "size": size, "sort": sortKey, "filters": filters},
			Headers: headers,
			Timeout: 10 * time.Second,
		},
		{
			Op:      ToolNTRSSearch,
			Method:  http.MethodGet,
			URL:     s.baseURL + "/api/citations",
			Query:   query,
			Headers: headers,
			Timeout: 10 * time.Second,
		},
	}
}

func (s *NTRSSearch) normalize(ctx context.Context, doc any) ([]NTRSItem, int) {
	match, ok := ntrsShapes.match(ctx, ToolNTRSSearch, doc)
	if !ok {
		return []NTRSItem{}, 0
	}
	items := make([]NTRSItem, 0, len(match.Records))
	for _, rec := range match.Records {
		items = append(items, s.toItem(rec))
	}
	total := match.Total
	if total < 0 {
		total = len(items)
	}
	return items, total
}

func (s *NTRSSearch) toItem(src map[string]any) NTRSItem {
	if inner, ok := src["_source"].(map[string]any); ok {
		src = inner
	}

	id := utils.FirstString(src, "nasa_id", "nasaId", "id", "nasaIdentifier")
	title := utils.FirstString(src, "title", "headline", "titleText")
	if title == "" {
		title = ntrsUntitled
	}
	link := s.baseURL + "/"
	if id != "" {
		link = s.baseURL + "/citations/" + url.PathEscape(id)
	}

	var year *int
	if v, ok := utils.FirstValue(src, "publicationYear", "year", "pubYear", "publication_year", "submittedDate"); ok {
		year = coerceYear(v)
	}

	return NTRSItem{
		Title:    title,
		URL:      link,
		NASAID:   id,
		Year:     year,
		Abstract: clip(utils.FirstString(src, "abstract", "summary", "description"), abstractLimit),
		Authors:  ntrsAuthors(src),
	}
}

// ntrsAuthors accepts "a; b" strings, lists of names or {name} objects, and the
// authorAffiliations[].meta.author.name layout of the live API.
func ntrsAuthors(src map[string]any) []string {
	authors := []string{}
	raw, _ := utils.FirstValue(src, "authors", "author", "authorAffiliations")
	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ";") {
			if part = strings.TrimSpace(part); part != "" {
				authors = append(authors, part)
			}
		}
	case []any:
		for _, a := range v {
			switch entry := a.(type) {
			case string:
				if entry = strings.TrimSpace(entry); entry != "" {
					authors = append(authors, entry)
				}
			case map[string]any:
				name := utils.FirstString(entry, "name", "authorName")
				if name == "" {
					if meta, ok := entry["meta"].(map[string]any); ok {
						if author, ok := meta["author"].(map[string]any); ok {
							name = utils.FirstString(author, "name")
						}
					}
				}
				if name != "" {
					authors = append(authors, name)
				}
			}
		}
	}
	return authors
}

// coerceYear accepts numbers as-is and otherwise takes the first four-digit run in 1800..2100.
func coerceYear(v any) *int {
	switch n := v.(type) {
	case float64:
		y := int(n)
		return &y
	case int:
		return &n
	case string:
		for i := 0; i+4 <= len(n); i++ {
			chunk := n[i : i+4]
			y, err := strconv.Atoi(chunk)
			if err != nil || strings.ContainsAny(chunk, "+-") {
				continue
			}
			if y >= 1800 && y <= 2100 {
				return &y
			}
		}
	}
	return nil
}

// sortByYearDesc orders newest first; items without a year go last.
func sortByYearDesc(items []NTRSItem) {
	yearOf := func(it NTRSItem) int {
		if it.Year == nil {
			return -1
		}
		return *it.Year
	}
	sort.SliceStable(items, func(i, j int) bool {
		return yearOf(items[i]) > yearOf(items[j])
	})
}
