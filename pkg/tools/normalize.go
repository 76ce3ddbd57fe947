package tools

import (
	"net"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
)

// DomainKey returns the registrable domain of rawURL ("docs.nasa.gov/x" -> "nasa.gov").
// Hosts without a public suffix (IP addresses, localhost) are returned as-is.
func DomainKey(rawURL string) string {
	host := hostOf(rawURL)
	if host == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	if net.ParseIP(host) != nil {
		return host
	}
	key, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return key
}

func hostOf(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// DedupeByDomain keeps the first item per domain key, preserving order, and caps
// the result at k (k <= 0 means no cap).
func DedupeByDomain[T any](items []T, urlOf func(T) string, k int) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		key := DomainKey(urlOf(item))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
		if k > 0 && len(out) >= k {
			break
		}
	}
	return out
}

// domainAllowed applies site allow/block lists to the host of rawURL.
// An entry matches the host itself or any subdomain of it (leading dots ignored).
func domainAllowed(rawURL string, allow, block []string) bool {
	key := hostOf(rawURL)
	if key == "" {
		key = DomainKey(rawURL)
	}
	matches := func(list []string) bool {
		for _, s := range list {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			s = strings.TrimLeft(s, ".")
			if key == s || strings.HasSuffix(key, "."+s) {
				return true
			}
		}
		return false
	}
	if len(allow) > 0 && !matches(allow) {
		return false
	}
	if len(block) > 0 && matches(block) {
		return false
	}
	return true
}

// Truncate trims text and caps it at limit runes. The second result reports whether
// the text was cut; a cut result is exactly limit runes long, even when the cut
// lands on whitespace.
func Truncate(text string, limit int) (string, bool) {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	return string([]rune(text)[:limit]), true
}

// TruncateEllipsis is Truncate with the last kept rune replaced by "…".
func TruncateEllipsis(text string, limit int) (string, bool) {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	return string([]rune(text)[:limit-1]) + "…", true
}

// clip cuts s to at most n runes without trimming.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// CleanText normalizes extracted document text: carriage returns removed, lines
// trimmed, blank lines dropped, paragraphs separated by one blank line.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n\n")
}
