package tools

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skippedElements never contribute readable text.
//
//nolint:gochecknoglobals // read-only lookup table
var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
	atom.Form: true, atom.Svg: true, atom.Iframe: true,
}

// blockElements end a line of text.
//
//nolint:gochecknoglobals // read-only lookup table
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true, atom.Li: true,
	atom.Tr: true, atom.Td: true, atom.Th: true, atom.Section: true, atom.Article: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Blockquote: true, atom.Dd: true, atom.Dt: true, atom.Figcaption: true,
}

// extractHTML returns cleaned readable text and the page title. The DOM walk prefers
// the <article> or <main> subtree; the regex stripper covers pages it yields nothing for.
func extractHTML(body []byte) (string, string) {
	text, title := extractHTMLTree(body)
	if text != "" {
		return text, title
	}
	fallbackText := CleanText(stripTags(string(body)))
	if title == "" {
		title = regexTitle(string(body))
	}
	return fallbackText, title
}

func extractHTMLTree(body []byte) (string, string) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}

	title := documentTitle(doc)
	root := findFirst(doc, atom.Article)
	if root == nil {
		root = findFirst(doc, atom.Main)
	}
	if root == nil {
		root = findFirst(doc, atom.Body)
	}
	if root == nil {
		root = doc
	}

	var sb strings.Builder
	collectText(root, &sb)
	return CleanText(sb.String()), title
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode && blockElements[n.DataAtom] {
		sb.WriteByte('\n')
	}
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// documentTitle prefers og:title, then <title>.
func documentTitle(doc *html.Node) string {
	var ogTitle, title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Meta:
				if attr(n, "property") == "og:title" && ogTitle == "" {
					ogTitle = strings.TrimSpace(attr(n, "content"))
				}
			case atom.Title:
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if ogTitle != "" {
		return ogTitle
	}
	return title
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

//nolint:gochecknoglobals // compiled once
var (
	titleRegex   = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)
	scriptRegex  = regexp.MustCompile(`(?is)<(script|style|noscript|title)[^>]*>.*?</(script|style|noscript|title)>`)
	commentRegex = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockRegex   = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|li|tr|br|hr)[^>]*>`)
	tagRegex     = regexp.MustCompile(`<[^>]+>`)
	spaceRegex   = regexp.MustCompile(`[ \t]+`)
)

func regexTitle(doc string) string {
	if m := titleRegex.FindStringSubmatch(doc); len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(m[1]))
	}
	return ""
}

// stripTags is the tolerant fallback for markup the DOM walk cannot use.
func stripTags(doc string) string {
	doc = scriptRegex.ReplaceAllString(doc, "")
	doc = commentRegex.ReplaceAllString(doc, "")
	doc = blockRegex.ReplaceAllString(doc, "\n")
	doc = tagRegex.ReplaceAllString(doc, "")
	doc = html.UnescapeString(doc)
	return spaceRegex.ReplaceAllString(doc, " ")
}
