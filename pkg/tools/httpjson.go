package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"researchcopilot/pkg/agent/middleware/resilience/retry"
	"researchcopilot/pkg/logx"
)

// maxJSONBody bounds how much of an upstream JSON response is read.
const maxJSONBody = 10 << 20

// jsonCall describes one upstream JSON exchange.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type jsonCall struct {
	Op      string
	Method  string
	URL     string
	Query   url.Values
	Body    any
	Headers map[string]string
	// Timeout bounds a single attempt; zero means the client's own timeout.
	Timeout time.Duration
}

// doJSON performs one attempt of call and decodes the response body.
func doJSON(ctx context.Context, client *http.Client, call *jsonCall) (any, error) {
	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}

	target := call.URL
	if len(call.Query) > 0 {
		target += "?" + call.Query.Encode()
	}

	var body io.Reader
	if call.Body != nil {
		data, err := json.Marshal(call.Body)
		if err != nil {
			return nil, permanent(call.Op, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, target, body)
	if err != nil {
		return nil, permanent(call.Op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(call.Op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		return nil, transportError(call.Op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(call.Op, resp.StatusCode, string(data))
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, permanent(call.Op, fmt.Errorf("decode response: %w", err))
	}
	return doc, nil
}

// fetchJSON runs call under the retry policy.
func fetchJSON(ctx context.Context, client *http.Client, policy *retry.Policy, call *jsonCall) (any, error) {
	doc, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (any, error) {
		if attempt > 1 {
			logx.Debug(ctx, "http", "%s: attempt %d", call.Op, attempt)
		}
		return doJSON(ctx, client, call)
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", call.Method, call.URL, err)
	}
	return doc, nil
}

// fetchFirstJSON tries each call in order and returns the first success, or the
// last error when every endpoint fails.
func fetchFirstJSON(ctx context.Context, client *http.Client, policy *retry.Policy, calls []*jsonCall) (any, error) {
	if len(calls) == 0 {
		return nil, errors.New("no endpoints configured")
	}
	var lastErr error
	for _, call := range calls {
		doc, err := fetchJSON(ctx, client, policy, call)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logx.Debug(ctx, "http", "%s: endpoint %s failed: %v", call.Op, call.URL, err)
	}
	return nil, lastErr
}
