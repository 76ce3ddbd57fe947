package tools

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDedupeByDomain(t *testing.T) {
	urls := []string{
		"https://a.com/1",
		"https://www.a.com/2",
		"https://b.org/x",
		"https://docs.a.com/3",
		"https://c.net/",
	}
	identity := func(s string) string { return s }

	assert.Equal(t, []string{"https://a.com/1", "https://b.org/x"}, DedupeByDomain(urls, identity, 2))
	assert.Equal(t, []string{"https://a.com/1", "https://b.org/x", "https://c.net/"}, DedupeByDomain(urls, identity, 0))
	assert.Empty(t, DedupeByDomain([]string{}, identity, 3))
}

func TestDomainKey(t *testing.T) {
	tests := map[string]string{
		"https://docs.nasa.gov/page":     "nasa.gov",
		"http://www.bbc.co.uk/news":      "bbc.co.uk",
		"ntrs.nasa.gov/citations/1":      "nasa.gov",
		"https://EXAMPLE.com./":          "example.com",
		"http://127.0.0.1:8080/x":        "127.0.0.1",
		"http://localhost/search":        "localhost",
		"https://en.wikipedia.org/wiki/X": "wikipedia.org",
	}
	for in, want := range tests {
		assert.Equal(t, want, DomainKey(in), in)
	}
}

func TestDomainAllowed(t *testing.T) {
	assert.True(t, domainAllowed("https://ntrs.nasa.gov/x", nil, nil))
	assert.True(t, domainAllowed("https://ntrs.nasa.gov/x", []string{"nasa.gov"}, nil))
	assert.True(t, domainAllowed("https://ntrs.nasa.gov/x", []string{".gov"}, nil))
	assert.False(t, domainAllowed("https://esa.int/x", []string{"nasa.gov"}, nil))
	assert.False(t, domainAllowed("https://spam.example.com/x", nil, []string{"example.com"}))
	assert.False(t, domainAllowed("https://nasa.gov/x", []string{"gov"}, []string{"nasa.gov"}))
}

func TestDomainAllowed_MatchesOnLabelBoundary(t *testing.T) {
	assert.False(t, domainAllowed("https://evilnasa.gov/x", []string{"nasa.gov"}, nil))
	assert.True(t, domainAllowed("https://evilnasa.gov/x", nil, []string{"nasa.gov"}))
	assert.True(t, domainAllowed("https://NTRS.nasa.gov./x", []string{"ntrs.nasa.gov"}, nil))
	assert.False(t, domainAllowed("https://www.nasa.gov/x", []string{"ntrs.nasa.gov"}, nil))
}

func TestTruncate(t *testing.T) {
	text := strings.Repeat("é", 50)
	for _, limit := range []int{1, 10, 49, 50, 51, 200} {
		out, truncated := Truncate(text, limit)
		n := utf8.RuneCountInString(out)
		assert.Equal(t, limit < 50, truncated, "limit %d", limit)
		assert.Equal(t, min(limit, 50), n, "limit %d", limit)
	}

	out, truncated := Truncate("  padded  ", 6)
	assert.Equal(t, "padded", out)
	assert.False(t, truncated)

	out, truncated = Truncate("  abc def  ", 4)
	assert.True(t, truncated)
	assert.Equal(t, "abc ", out, "a cut keeps exactly limit runes")
}

func TestTruncateEllipsis(t *testing.T) {
	out, truncated := TruncateEllipsis("abcdefghij", 5)
	assert.True(t, truncated)
	assert.Equal(t, "abcd…", out)
	assert.Equal(t, 5, utf8.RuneCountInString(out))

	out, truncated = TruncateEllipsis("abc", 5)
	assert.False(t, truncated)
	assert.Equal(t, "abc", out)
}

func TestCleanText(t *testing.T) {
	in := "  Title \r\n\r\n\n  first line\n\t\nsecond  \n"
	assert.Equal(t, "Title\n\nfirst line\n\nsecond", CleanText(in))
	assert.Equal(t, "", CleanText(" \n\r\n "))
}
