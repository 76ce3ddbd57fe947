package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchcopilot/pkg/config"
)

const apolloExtract = `Apollo 11 was the first crewed Moon landing.
It launched in 1969.

== Background ==
The Space Race motivated the program.

== Mission ==
Overview of the flight.

=== Launch ===
Liftoff from Kennedy Space Center.

=== Lunar landing ===
The Eagle landed in the Sea of Tranquility.

== Legacy ==
`

// fakeMediaWiki answers list=search and prop=extracts queries from fixed data.
func fakeMediaWiki(t *testing.T, pages map[string]map[string]any, search []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		var resp map[string]any
		switch {
		case q.Get("list") == "search":
			hits := make([]any, 0, len(search))
			for _, title := range search {
				hits = append(hits, map[string]any{"title": title})
			}
			resp = map[string]any{"query": map[string]any{"search": hits}}
		case q.Get("titles") != "":
			var out []any
			var normalized []any
			for _, title := range strings.Split(q.Get("titles"), "|") {
				lookup := title
				for canonical := range pages {
					if canonical != title && strings.EqualFold(canonical, title) {
						normalized = append(normalized, map[string]any{"from": title, "to": canonical})
						lookup = canonical
					}
				}
				if page, ok := pages[lookup]; ok {
					out = append(out, page)
				} else {
					out = append(out, map[string]any{"title": title, "missing": true})
				}
			}
			resp = map[string]any{"query": map[string]any{"pages": out, "normalized": normalized}}
		default:
			resp = map[string]any{"error": map[string]any{"code": "badquery", "info": "unexpected"}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wikiDeps(apiURL string) *Deps {
	return &Deps{
		HTTPClient: http.DefaultClient,
		Sources:    config.SourcesConfig{WikipediaAPIURL: apiURL, UserAgent: "test-agent"},
	}
}

func TestWikipediaLookup_Invoke_SkipsDisambiguationAndMissing(t *testing.T) {
	srv := fakeMediaWiki(t, map[string]map[string]any{
		"Apollo":    {"pageid": 1, "title": "Apollo", "extract": "Apollo may refer to...", "pageprops": map[string]any{"disambiguation": ""}},
		"Apollo 11": {"pageid": 11, "title": "Apollo 11", "extract": " First landing. It was 1969. ", "fullurl": "https://en.wikipedia.org/wiki/Apollo_11"},
		"Apollo 13": {"pageid": 13, "title": "Apollo 13", "extract": "Aborted landing."},
	}, []string{"Apollo", "Ghost page", "Apollo 11", "Apollo 13"})

	capability, err := newWikipediaLookup(wikiDeps(srv.URL))
	require.NoError(t, err)
	out, err := capability.Invoke(context.Background(), map[string]any{"q": "apollo", "k": 1, "lang": "en"})
	require.NoError(t, err)

	res := out.(WikiLookupOutput)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, WikiPage{
		PageID:  "11",
		Title:   "Apollo 11",
		Summary: "First landing. It was 1969.",
		URL:     "https://en.wikipedia.org/wiki/Apollo_11",
	}, res.Pages[0])
}

func TestWikipediaLookup_Invoke_NoHits(t *testing.T) {
	srv := fakeMediaWiki(t, nil, nil)
	capability, _ := newWikipediaLookup(wikiDeps(srv.URL))

	out, err := capability.Invoke(context.Background(), map[string]any{"q": "zzz", "k": 5, "lang": "en"})
	require.NoError(t, err)
	assert.Equal(t, WikiLookupOutput{Pages: []WikiPage{}}, out)
}

func TestWikipediaExtract_Invoke_Sections(t *testing.T) {
	srv := fakeMediaWiki(t, map[string]map[string]any{
		"Apollo 11": {"pageid": 11, "title": "Apollo 11", "extract": apolloExtract},
	}, nil)
	capability, _ := newWikipediaExtract(wikiDeps(srv.URL))

	out, err := capability.Invoke(context.Background(), map[string]any{
		"title": "apollo 11", "sections": []any{"landing", "background", "Legacy"}, "lang": "en", "max_chars_per_section": 1200,
	})
	require.NoError(t, err)

	res := out.(WikiExtractOutput)
	assert.Equal(t, "Apollo 11", res.Title)
	assert.Equal(t, "11", res.PageID)
	assert.Equal(t, []WikiSection{
		{Section: "Background", Text: "The Space Race motivated the program."},
		{Section: "Lunar landing", Text: "The Eagle landed in the Sea of Tranquility."},
	}, res.Content, "empty Legacy section is skipped")
}

func TestWikipediaExtract_Invoke_LeadFallback(t *testing.T) {
	srv := fakeMediaWiki(t, map[string]map[string]any{
		"Apollo 11": {"pageid": 11, "title": "Apollo 11", "extract": apolloExtract},
	}, nil)
	capability, _ := newWikipediaExtract(wikiDeps(srv.URL))

	out, err := capability.Invoke(context.Background(), map[string]any{
		"title": "Apollo 11", "sections": []any{"Nonexistent"}, "lang": "en", "max_chars_per_section": 1200,
	})
	require.NoError(t, err)

	res := out.(WikiExtractOutput)
	require.Len(t, res.Content, 1)
	assert.Equal(t, LeadSection, res.Content[0].Section)
	assert.Equal(t, "Apollo 11 was the first crewed Moon landing.\nIt launched in 1969.", res.Content[0].Text)
}

func TestWikipediaExtract_Invoke_SearchFallbackAndMissing(t *testing.T) {
	srv := fakeMediaWiki(t, map[string]map[string]any{
		"Apollo 11": {"pageid": 11, "title": "Apollo 11", "extract": "Lead text."},
	}, []string{"Apollo 11"})
	capability, _ := newWikipediaExtract(wikiDeps(srv.URL))

	out, err := capability.Invoke(context.Background(), map[string]any{"title": "First moon landing", "lang": "en", "max_chars_per_section": 1200})
	require.NoError(t, err)
	res := out.(WikiExtractOutput)
	assert.Equal(t, "Apollo 11", res.Title)
	assert.Equal(t, []WikiSection{{Section: LeadSection, Text: "Lead text."}}, res.Content)

	empty := fakeMediaWiki(t, nil, nil)
	capability, _ = newWikipediaExtract(wikiDeps(empty.URL))
	out, err = capability.Invoke(context.Background(), map[string]any{"title": "Nothing", "lang": "en", "max_chars_per_section": 1200})
	require.NoError(t, err)
	assert.Equal(t, WikiExtractOutput{Title: "Nothing", Content: []WikiSection{}}, out)
}

func TestSelectSections_TruncatesWithEllipsis(t *testing.T) {
	long := strings.Repeat("a", 500)
	sections := []wikiSection{{path: "History", title: "History", text: long}}

	got := selectSections("lead", sections, []string{"history"}, 200)
	require.Len(t, got, 1)
	assert.Equal(t, 200, utf8.RuneCountInString(got[0].Text))
	assert.True(t, strings.HasSuffix(got[0].Text, "…"))
}

func TestSelectSections_LeadFromFirstSection(t *testing.T) {
	sections := []wikiSection{{path: "Intro", title: "Intro", text: "First paragraph.\n\nSecond paragraph."}}
	got := selectSections("", sections, nil, 1200)
	assert.Equal(t, []WikiSection{{Section: LeadSection, Text: "First paragraph."}}, got)
}

func TestParseWikiSections(t *testing.T) {
	lead, sections := parseWikiSections(apolloExtract)
	assert.Equal(t, "Apollo 11 was the first crewed Moon landing.\nIt launched in 1969.", lead)

	paths := make([]string, len(sections))
	for i := range sections {
		paths[i] = sections[i].path
	}
	assert.Equal(t, []string{"Background", "Mission", "Mission/Launch", "Mission/Lunar landing", "Legacy"}, paths)
	assert.Equal(t, "Overview of the flight.", sections[1].text)
	assert.Empty(t, sections[4].text)
}

func TestWikiClientEndpoint(t *testing.T) {
	c := &wikiClient{apiURL: "https://%s.wikipedia.org/w/api.php"}
	assert.Equal(t, "https://cs.wikipedia.org/w/api.php", c.endpoint("CS"))
	assert.Equal(t, "https://en.wikipedia.org/w/api.php", c.endpoint("../evil"))
	assert.Equal(t, "https://zh-yue.wikipedia.org/w/api.php", c.endpoint("zh-yue"))
}
