package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchcopilot/pkg/logx"
)

const articleHTML = `<!doctype html>
<html><head><title>Fallback Title</title>
<meta property="og:title" content="Orion Heat Shield">
<script>var tracking = "ignored";</script></head>
<body>
<nav>Home | About</nav>
<article>
  <h1>Orion Heat Shield</h1>
  <p>The Avcoat   ablator protects the capsule.</p>
  <p>It was tested on Artemis I.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func newTestWebFetch(cache FetchCache) *WebFetch {
	return &WebFetch{
		httpClient: http.DefaultClient,
		policy:     fastPolicy(),
		cache:      cache,
		userAgent:  "test-agent",
		logger:     logx.NewLogger("test"),
	}
}

func fetchInput(target string, extra map[string]any) map[string]any {
	in := map[string]any{"url": target, "max_chars": 8000, "timeout_sec": 12}
	for k, v := range extra {
		in[k] = v
	}
	return in
}

func TestWebFetch_Invoke_HTML(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	out, err := newTestWebFetch(nil).Invoke(context.Background(), fetchInput(srv.URL+"/page", nil))
	require.NoError(t, err)

	res := out.(WebFetchOutput)
	assert.Equal(t, srv.URL+"/page", res.URL)
	assert.Equal(t, srv.URL+"/page", res.FinalURL)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/html", res.ContentType)
	assert.Equal(t, "Orion Heat Shield", res.Title)
	assert.Equal(t, "Orion Heat Shield\n\nThe Avcoat   ablator protects the capsule.\n\nIt was tested on Artemis I.", res.Text)
	assert.NotContains(t, res.Text, "Home | About")
	assert.NotContains(t, res.Text, "tracking")
	assert.False(t, res.Truncated)
	assert.Equal(t, utf8.RuneCountInString(res.Text), res.CharsReturned)
	assert.Equal(t, "test-agent", gotUA)
}

func TestWebFetch_Invoke_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<p>moved here</p>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := newTestWebFetch(nil).Invoke(context.Background(), fetchInput(srv.URL+"/old", map[string]any{"user_agent": "custom"}))
	require.NoError(t, err)
	res := out.(WebFetchOutput)
	assert.Equal(t, srv.URL+"/old", res.URL)
	assert.Equal(t, srv.URL+"/new", res.FinalURL)
	assert.Equal(t, "moved here", res.Text)
	assert.Equal(t, "moved here", res.Title, "title falls back to the first line")
}

func TestWebFetch_Invoke_Truncates(t *testing.T) {
	body := "<p>" + strings.Repeat("word ", 400) + "</p>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	out, err := newTestWebFetch(nil).Invoke(context.Background(), fetchInput(srv.URL, map[string]any{"max_chars": 500}))
	require.NoError(t, err)
	res := out.(WebFetchOutput)
	assert.True(t, res.Truncated)
	assert.Equal(t, 500, res.CharsReturned)
	assert.Equal(t, 500, utf8.RuneCountInString(res.Text))
}

func TestWebFetch_Invoke_ClientErrorIsOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<title>Not Found</title><p>nothing here</p>"))
	}))
	defer srv.Close()

	out, err := newTestWebFetch(nil).Invoke(context.Background(), fetchInput(srv.URL, nil))
	require.NoError(t, err)
	res := out.(WebFetchOutput)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Not Found", res.Title)
}

func TestWebFetch_Invoke_ServerErrorRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestWebFetch(nil).Invoke(context.Background(), fetchInput(srv.URL, nil))
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, CauseTransientUpstream, classifyCause(err))
}

func TestWebFetch_Invoke_RejectsNonHTTP(t *testing.T) {
	for _, target := range []string{"example.com", "ftp://example.com/file", "file:///etc/passwd"} {
		_, err := newTestWebFetch(nil).Invoke(context.Background(), fetchInput(target, nil))
		require.Error(t, err, target)
		assert.Equal(t, CausePermanentUpstream, classifyCause(err), target)
	}
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func TestWebFetch_Invoke_UsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("<p>cached body</p>"))
	}))
	defer srv.Close()

	cache := newMemoryCache()
	fetcher := newTestWebFetch(cache)
	first, err := fetcher.Invoke(context.Background(), fetchInput(srv.URL, nil))
	require.NoError(t, err)
	second, err := fetcher.Invoke(context.Background(), fetchInput(srv.URL, nil))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, cache.sets)

	_, err = fetcher.Invoke(context.Background(), fetchInput(srv.URL, map[string]any{"max_chars": 600}))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "max_chars is part of the cache key")
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("https://x.org/report", "application/pdf"))
	assert.True(t, isPDF("https://x.org/files/Report.PDF?dl=1", ""))
	assert.True(t, isPDF("https://x.org/files/report.pdf", "application/octet-stream"))
	assert.False(t, isPDF("https://x.org/report.html", "text/html"))
}

func TestBuildFetchOutput_PDFFallbackTypes(t *testing.T) {
	out := buildFetchOutput("https://x.org/a.pdf", &fetched{finalURL: "https://x.org/a.pdf", status: 200, body: []byte("not really a pdf")}, 1000)
	assert.Equal(t, "application/pdf", out.ContentType)
	assert.Empty(t, out.Text)
	assert.Zero(t, out.CharsReturned)

	out = buildFetchOutput("https://x.org/", &fetched{finalURL: "https://x.org/", status: 200, body: []byte("<p>hi</p>")}, 1000)
	assert.Equal(t, "text/html", out.ContentType)
	assert.Equal(t, "hi", out.Text)
}

func TestExtractHTML_RegexFallback(t *testing.T) {
	text, title := extractHTML([]byte("<html><head><title>Only &amp; Title</title></head><body><script>x()</script></body></html>"))
	assert.Empty(t, text)
	assert.Equal(t, "Only & Title", title)
}

func TestFetchCacheKey(t *testing.T) {
	a := fetchCacheKey("https://x.org", 8000)
	assert.True(t, strings.HasPrefix(a, "web_fetch:"))
	assert.Equal(t, a, fetchCacheKey("https://x.org", 8000))
	assert.NotEqual(t, a, fetchCacheKey("https://x.org", 8001))
}
