package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"researchcopilot/pkg/agent/middleware/resilience/retry"
	"researchcopilot/pkg/utils"
)

// LeadSection names the introduction returned when no requested section matched.
const LeadSection = "Lead"

// WikiPage is one wikipedia_lookup hit.
type WikiPage struct {
	PageID  string `json:"page_id,omitempty"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url,omitempty"`
}

// WikiLookupOutput is the wikipedia_lookup payload.
type WikiLookupOutput struct {
	Pages []WikiPage `json:"pages"`
}

// WikiSection is one extracted section.
type WikiSection struct {
	Section string `json:"section"`
	Text    string `json:"text"`
}

// WikiExtractOutput is the wikipedia_extract payload.
type WikiExtractOutput struct {
	Title   string        `json:"title"`
	PageID  string        `json:"page_id,omitempty"`
	URL     string        `json:"url,omitempty"`
	Content []WikiSection `json:"content"`
}

type wikiLookupInput struct {
	Q    string `json:"q"`
	K    int    `json:"k"`
	Lang string `json:"lang"`
}

type wikiExtractInput struct {
	Title              string   `json:"title"`
	Sections           []string `json:"sections"`
	Lang               string   `json:"lang"`
	MaxCharsPerSection int      `json:"max_chars_per_section"`
}

func wikipediaLookupInputSchema() *jsonschema.Schema {
	return objectSchema([]string{"q"}, map[string]*jsonschema.Schema{
		"q":    requiredString("Search query for Wikipedia."),
		"k":    intRange("Number of results to return.", 1, 10, intPtr(5)),
		"lang": stringDefault("Wikipedia language code (e.g., 'en', 'cs', 'sk').", "en"),
	})
}

func wikipediaLookupOutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"pages"}, map[string]*jsonschema.Schema{
		"pages": arrayOf(objectSchema([]string{"title", "summary"}, map[string]*jsonschema.Schema{
			"page_id": typed("string"),
			"title":   typed("string"),
			"summary": typed("string"),
			"url":     typed("string"),
		})),
	})
}

func wikipediaExtractInputSchema() *jsonschema.Schema {
	return objectSchema([]string{"title"}, map[string]*jsonschema.Schema{
		"title":                 requiredString("Exact page title to extract from."),
		"sections":              stringList("Section names to extract (case-insensitive). If omitted, returns lead summary."),
		"lang":                  stringDefault("Wikipedia language code.", "en"),
		"max_chars_per_section": intRange("Truncate each section to this many characters.", 200, 8000, intPtr(1200)),
	})
}

func wikipediaExtractOutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"title", "content"}, map[string]*jsonschema.Schema{
		"title":   typed("string"),
		"page_id": typed("string"),
		"url":     typed("string"),
		"content": arrayOf(objectSchema([]string{"section", "text"}, map[string]*jsonschema.Schema{
			"section": typed("string"),
			"text":    typed("string"),
		})),
	})
}

//nolint:gochecknoglobals // compiled once
var (
	langCode       = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]{2,8})*$`)
	headingPattern = regexp.MustCompile(`^(={2,6})\s*(.*?)\s*={2,6}$`)
)

// wikiClient talks to the MediaWiki action API of one wiki per language.
type wikiClient struct {
	httpClient *http.Client
	policy     *retry.Policy
	apiURL     string
	userAgent  string
}

func newWikiClient(deps *Deps) *wikiClient {
	api := deps.Sources.WikipediaAPIURL
	if api == "" {
		api = "https://%s.wikipedia.org/w/api.php"
	}
	return &wikiClient{
		httpClient: deps.httpClient(),
		policy:     deps.policy(),
		apiURL:     api,
		userAgent:  deps.userAgent(),
	}
}

// endpoint resolves the API URL for lang; unknown codes fall back to English.
func (c *wikiClient) endpoint(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if !langCode.MatchString(lang) {
		lang = "en"
	}
	if strings.Contains(c.apiURL, "%s") {
		return fmt.Sprintf(c.apiURL, lang)
	}
	return c.apiURL
}

func (c *wikiClient) query(ctx context.Context, op, lang string, params url.Values) (map[string]any, error) {
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("formatversion", "2")
	doc, err := fetchJSON(ctx, c.httpClient, c.policy, &jsonCall{
		Op:      op,
		Method:  http.MethodGet,
		URL:     c.endpoint(lang),
		Query:   params,
		Headers: map[string]string{"User-Agent": c.userAgent},
	})
	if err != nil {
		return nil, err
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, permanent(op, fmt.Errorf("unexpected response type %T", doc))
	}
	if apiErr, ok := obj["error"].(map[string]any); ok {
		return nil, permanent(op, fmt.Errorf("mediawiki: %s", utils.FirstString(apiErr, "info", "code")))
	}
	q, _ := obj["query"].(map[string]any)
	if q == nil {
		q = map[string]any{}
	}
	return q, nil
}

// search returns up to limit page titles for a full-text query.
func (c *wikiClient) search(ctx context.Context, op, lang, q string, limit int) ([]string, error) {
	params := url.Values{}
	params.Set("list", "search")
	params.Set("srsearch", q)
	params.Set("srlimit", strconv.Itoa(limit))
	params.Set("srprop", "")
	res, err := c.query(ctx, op, lang, params)
	if err != nil {
		return nil, err
	}
	hits, _ := res["search"].([]any)
	titles := make([]string, 0, len(hits))
	for _, h := range hits {
		if obj, ok := h.(map[string]any); ok {
			if title := utils.FirstString(obj, "title"); title != "" {
				titles = append(titles, title)
			}
		}
	}
	return titles, nil
}

// wikiPageInfo is the subset of page properties the capabilities use.
type wikiPageInfo struct {
	pageID         string
	title          string
	url            string
	extract        string
	missing        bool
	disambiguation bool
}

func pageInfo(obj map[string]any) wikiPageInfo {
	info := wikiPageInfo{
		pageID:  utils.FirstString(obj, "pageid"),
		title:   utils.FirstString(obj, "title"),
		url:     utils.FirstString(obj, "fullurl", "canonicalurl"),
		extract: utils.GetMapFieldOr(obj, "extract", ""),
	}
	_, info.missing = obj["missing"]
	if _, invalid := obj["invalid"]; invalid {
		info.missing = true
	}
	if props, ok := obj["pageprops"].(map[string]any); ok {
		_, info.disambiguation = props["disambiguation"]
	}
	return info
}

// pages fetches page properties keyed by the requested title, following
// normalization and redirects back to what was asked for.
func (c *wikiClient) pages(ctx context.Context, op, lang string, titles []string, params url.Values) (map[string]wikiPageInfo, error) {
	params.Set("titles", strings.Join(titles, "|"))
	params.Set("prop", "extracts|info|pageprops")
	params.Set("inprop", "url")
	params.Set("ppprop", "disambiguation")
	params.Set("redirects", "1")
	params.Set("explaintext", "1")
	res, err := c.query(ctx, op, lang, params)
	if err != nil {
		return nil, err
	}

	byTitle := make(map[string]wikiPageInfo)
	rawPages, _ := res["pages"].([]any)
	for _, p := range rawPages {
		if obj, ok := p.(map[string]any); ok {
			info := pageInfo(obj)
			byTitle[info.title] = info
		}
	}

	aliases := make(map[string]string)
	for _, key := range []string{"normalized", "redirects"} {
		entries, _ := res[key].([]any)
		for _, e := range entries {
			if obj, ok := e.(map[string]any); ok {
				aliases[utils.FirstString(obj, "from")] = utils.FirstString(obj, "to")
			}
		}
	}

	out := make(map[string]wikiPageInfo, len(titles))
	for _, requested := range titles {
		resolved := requested
		for hops := 0; hops < 3; hops++ {
			next, ok := aliases[resolved]
			if !ok {
				break
			}
			resolved = next
		}
		if info, ok := byTitle[resolved]; ok {
			out[requested] = info
		}
	}
	return out, nil
}

// =============================================================================
// wikipedia_lookup
// =============================================================================

// WikipediaLookup finds pages for a query and returns two-sentence summaries.
type WikipediaLookup struct {
	client *wikiClient
}

func newWikipediaLookup(deps *Deps) (Capability, error) {
	return &WikipediaLookup{client: newWikiClient(deps)}, nil
}

// Name returns the capability name.
func (w *WikipediaLookup) Name() string {
	return ToolWikipediaLookup
}

// Invoke over-fetches titles so disambiguation and missing pages can be skipped.
func (w *WikipediaLookup) Invoke(ctx context.Context, input map[string]any) (any, error) {
	var in wikiLookupInput
	if err := decodeInput(input, &in); err != nil {
		return nil, permanent(ToolWikipediaLookup, err)
	}
	in.Q = strings.TrimSpace(in.Q)
	if in.Q == "" {
		return nil, permanent(ToolWikipediaLookup, ErrEmptyQuery)
	}

	titles, err := w.client.search(ctx, ToolWikipediaLookup, in.Lang, in.Q, min(in.K*3, 20))
	if err != nil {
		return nil, fmt.Errorf("wikipedia search: %w", err)
	}
	out := WikiLookupOutput{Pages: []WikiPage{}}
	if len(titles) == 0 {
		return out, nil
	}

	params := url.Values{}
	params.Set("exintro", "1")
	params.Set("exsentences", "2")
	params.Set("exlimit", "max")
	infos, err := w.client.pages(ctx, ToolWikipediaLookup, in.Lang, titles, params)
	if err != nil {
		return nil, fmt.Errorf("wikipedia summaries: %w", err)
	}

	for _, title := range titles {
		info, ok := infos[title]
		if !ok || info.missing || info.disambiguation {
			continue
		}
		out.Pages = append(out.Pages, WikiPage{
			PageID:  info.pageID,
			Title:   info.title,
			Summary: strings.TrimSpace(info.extract),
			URL:     info.url,
		})
		if len(out.Pages) >= in.K {
			break
		}
	}
	return out, nil
}

// =============================================================================
// wikipedia_extract
// =============================================================================

// WikipediaExtract returns named sections of a page, or its lead.
type WikipediaExtract struct {
	client *wikiClient
}

func newWikipediaExtract(deps *Deps) (Capability, error) {
	return &WikipediaExtract{client: newWikiClient(deps)}, nil
}

// Name returns the capability name.
func (w *WikipediaExtract) Name() string {
	return ToolWikipediaExtract
}

// Invoke resolves the page (falling back to the top search hit), then selects sections.
func (w *WikipediaExtract) Invoke(ctx context.Context, input map[string]any) (any, error) {
	var in wikiExtractInput
	if err := decodeInput(input, &in); err != nil {
		return nil, permanent(ToolWikipediaExtract, err)
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, permanent(ToolWikipediaExtract, ErrEmptyQuery)
	}

	info, found, err := w.fetchPage(ctx, in.Lang, in.Title)
	if err != nil {
		return nil, err
	}
	if !found {
		hits, err := w.client.search(ctx, ToolWikipediaExtract, in.Lang, in.Title, 1)
		if err != nil {
			return nil, fmt.Errorf("wikipedia search: %w", err)
		}
		if len(hits) > 0 {
			if info, found, err = w.fetchPage(ctx, in.Lang, hits[0]); err != nil {
				return nil, err
			}
		}
	}
	if !found {
		return WikiExtractOutput{Title: in.Title, Content: []WikiSection{}}, nil
	}

	lead, sections := parseWikiSections(info.extract)
	return WikiExtractOutput{
		Title:   info.title,
		PageID:  info.pageID,
		URL:     info.url,
		Content: selectSections(lead, sections, in.Sections, in.MaxCharsPerSection),
	}, nil
}

func (w *WikipediaExtract) fetchPage(ctx context.Context, lang, title string) (wikiPageInfo, bool, error) {
	params := url.Values{}
	params.Set("exsectionformat", "wiki")
	infos, err := w.client.pages(ctx, ToolWikipediaExtract, lang, []string{title}, params)
	if err != nil {
		return wikiPageInfo{}, false, fmt.Errorf("wikipedia page %q: %w", title, err)
	}
	info, ok := infos[title]
	if !ok || info.missing {
		return wikiPageInfo{}, false, nil
	}
	return info, true, nil
}

// wikiSection is a parsed section with its full "a/b" path.
type wikiSection struct {
	path  string
	title string
	text  string
}

// parseWikiSections splits plain-text extract output on "== Heading ==" markers.
// Each section keeps only its own text, not that of its subsections.
func parseWikiSections(extract string) (string, []wikiSection) {
	var (
		lead     strings.Builder
		sections []wikiSection
		stack    []string
		body     *strings.Builder
	)
	flush := func() {}

	body = &lead
	for _, line := range strings.Split(extract, "\n") {
		m := headingPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			body.WriteString(line)
			body.WriteByte('\n')
			continue
		}
		flush()

		depth := len(m[1]) - 2
		if depth > len(stack) {
			depth = len(stack)
		}
		stack = append(stack[:depth], m[2])

		sb := &strings.Builder{}
		idx := len(sections)
		sections = append(sections, wikiSection{path: strings.Join(stack, "/"), title: m[2]})
		body = sb
		flush = func() { sections[idx].text = strings.TrimSpace(sb.String()) }
	}
	flush()

	leadText := strings.TrimSpace(lead.String())
	return leadText, sections
}

// selectSections matches requested names against the last path segment,
// case-insensitively, by equality or suffix. Empty sections are skipped and
// the lead is returned when nothing matched.
func selectSections(lead string, sections []wikiSection, wanted []string, limit int) []WikiSection {
	leadOnly := func() []WikiSection {
		if lead == "" {
			for i := range sections {
				if sections[i].text != "" {
					lead, _, _ = strings.Cut(sections[i].text, "\n\n")
					break
				}
			}
		}
		text, _ := TruncateEllipsis(lead, limit)
		return []WikiSection{{Section: LeadSection, Text: text}}
	}

	wantedLower := make([]string, 0, len(wanted))
	for _, w := range wanted {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			wantedLower = append(wantedLower, w)
		}
	}
	if len(wantedLower) == 0 {
		return leadOnly()
	}

	var selected []WikiSection
	for i := range sections {
		segments := strings.Split(sections[i].path, "/")
		tail := strings.ToLower(segments[len(segments)-1])
		if !matchesAny(tail, wantedLower) || sections[i].text == "" {
			continue
		}
		text, _ := TruncateEllipsis(sections[i].text, limit)
		selected = append(selected, WikiSection{Section: sections[i].title, Text: text})
	}
	if len(selected) == 0 {
		return leadOnly()
	}
	return selected
}

func matchesAny(tail string, wanted []string) bool {
	for _, w := range wanted {
		if tail == w || strings.HasSuffix(tail, w) {
			return true
		}
	}
	return false
}
