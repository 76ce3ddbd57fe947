package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"researchcopilot/pkg/agent/middleware/resilience/retry"
	"researchcopilot/pkg/logx"
)

const (
	// maxFetchBytes bounds how much of a document is read.
	maxFetchBytes   = 10 << 20
	titleFallbackLn = 140
)

// WebFetchOutput is the web_fetch payload.
type WebFetchOutput struct {
	URL           string `json:"url"`
	FinalURL      string `json:"final_url"`
	StatusCode    int    `json:"status_code"`
	ContentType   string `json:"content_type"`
	Title         string `json:"title,omitempty"`
	Text          string `json:"text"`
	CharsReturned int    `json:"chars_returned"`
	Truncated     bool   `json:"truncated"`
}

type webFetchInput struct {
	URL        string `json:"url"`
	MaxChars   int    `json:"max_chars"`
	TimeoutSec int    `json:"timeout_sec"`
	UserAgent  string `json:"user_agent"`
}

func webFetchInputSchema() *jsonschema.Schema {
	return objectSchema([]string{"url"}, map[string]*jsonschema.Schema{
		"url":         requiredString("HTTP/HTTPS URL to fetch."),
		"max_chars":   intRange("Max characters of cleaned text to return.", 500, 200000, intPtr(8000)),
		"timeout_sec": intRange("Network timeout for each request.", 4, 60, intPtr(12)),
		"user_agent":  stringProp("User-Agent header to send."),
	})
}

func webFetchOutputSchema() *jsonschema.Schema {
	return objectSchema([]string{"url", "final_url", "status_code", "content_type", "text", "chars_returned", "truncated"},
		map[string]*jsonschema.Schema{
			"url":            typed("string"),
			"final_url":      typed("string"),
			"status_code":    typed("integer"),
			"content_type":   typed("string"),
			"title":          typed("string"),
			"text":           typed("string"),
			"chars_returned": typed("integer"),
			"truncated":      typed("boolean"),
		})
}

// WebFetch downloads a page or PDF and returns its cleaned text.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type WebFetch struct {
	httpClient *http.Client
	policy     *retry.Policy
	cache      FetchCache
	userAgent  string
	logger     *logx.Logger
}

func newWebFetch(deps *Deps) (Capability, error) {
	return &WebFetch{
		httpClient: deps.httpClient(),
		policy:     deps.policy(),
		cache:      deps.Cache,
		userAgent:  deps.userAgent(),
		logger:     logx.NewLogger(ToolWebFetch),
	}, nil
}

// Name returns the capability name.
func (t *WebFetch) Name() string {
	return ToolWebFetch
}

// fetched is the raw response of one GET.
type fetched struct {
	finalURL    string
	status      int
	contentType string
	body        []byte
}

// Invoke fetches the URL, selects an extractor and truncates the text.
func (t *WebFetch) Invoke(ctx context.Context, input map[string]any) (any, error) {
	var in webFetchInput
	if err := decodeInput(input, &in); err != nil {
		return nil, permanent(ToolWebFetch, err)
	}
	target, err := url.Parse(strings.TrimSpace(in.URL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, permanent(ToolWebFetch, fmt.Errorf("URL must be an absolute http:// or https:// URL: %q", in.URL))
	}
	in.URL = target.String()

	key := fetchCacheKey(in.URL, in.MaxChars)
	if out, ok := t.cached(ctx, key); ok {
		return out, nil
	}

	page, err := retry.Do(ctx, t.policy, func(ctx context.Context, _ int) (*fetched, error) {
		return t.get(ctx, in.URL, time.Duration(in.TimeoutSec)*time.Second, in.UserAgent)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", in.URL, err)
	}

	out := buildFetchOutput(in.URL, page, in.MaxChars)
	t.store(ctx, key, &out)
	return out, nil
}

func (t *WebFetch) get(ctx context.Context, target string, timeout time.Duration, userAgent string) (*fetched, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, permanent(ToolWebFetch, fmt.Errorf("build request: %w", err))
	}
	if userAgent == "" {
		userAgent = t.userAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,text/plain;q=0.8,*/*;q=0.5")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ToolWebFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, statusError(ToolWebFetch, resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, transportError(ToolWebFetch, fmt.Errorf("read body: %w", err))
	}

	return &fetched{
		finalURL:    resp.Request.URL.String(),
		status:      resp.StatusCode,
		contentType: mediaType(resp.Header.Get("Content-Type")),
		body:        body,
	}, nil
}

func buildFetchOutput(requested string, page *fetched, maxChars int) WebFetchOutput {
	var text, title string
	contentType := page.contentType
	if isPDF(page.finalURL, contentType) {
		var err error
		text, title, err = extractPDF(page.body)
		if err != nil {
			logx.Debug(context.Background(), "shapes", "web_fetch: ParseDegradation: %v", err)
		}
		if contentType == "" {
			contentType = "application/pdf"
		}
	} else {
		text, title = extractHTML(page.body)
		if contentType == "" {
			contentType = "text/html"
		}
	}

	text, truncated := Truncate(text, maxChars)
	if title == "" && text != "" {
		first, _, _ := strings.Cut(text, "\n")
		title = clip(first, titleFallbackLn)
	}

	return WebFetchOutput{
		URL:           requested,
		FinalURL:      page.finalURL,
		StatusCode:    page.status,
		ContentType:   contentType,
		Title:         title,
		Text:          text,
		CharsReturned: len([]rune(text)),
		Truncated:     truncated,
	}
}

// mediaType lowercases a Content-Type header and drops its parameters.
func mediaType(header string) string {
	mt, _, _ := strings.Cut(header, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// isPDF decides by resolved content type first, then by the URL path suffix.
func isPDF(finalURL, contentType string) bool {
	if strings.Contains(contentType, "pdf") {
		return true
	}
	if u, err := url.Parse(finalURL); err == nil {
		return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(finalURL), ".pdf")
}

func fetchCacheKey(target string, maxChars int) string {
	sum := sha256.Sum256([]byte(target + "|" + strconv.Itoa(maxChars)))
	return "web_fetch:" + hex.EncodeToString(sum[:])
}

func (t *WebFetch) cached(ctx context.Context, key string) (WebFetchOutput, bool) {
	var out WebFetchOutput
	if t.cache == nil {
		return out, false
	}
	data, ok, err := t.cache.Get(ctx, key)
	if err != nil {
		t.logger.Warn("cache lookup failed: %v", err)
		return out, false
	}
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.logger.Warn("discarding corrupt cache entry %s: %v", key, err)
		return out, false
	}
	logx.Debug(ctx, "cache", "web_fetch hit for %s", out.URL)
	return out, true
}

func (t *WebFetch) store(ctx context.Context, key string, out *WebFetchOutput) {
	if t.cache == nil || out.StatusCode >= 400 {
		return
	}
	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := t.cache.Set(ctx, key, data); err != nil && !errors.Is(err, context.Canceled) {
		t.logger.Warn("cache store failed: %v", err)
	}
}
