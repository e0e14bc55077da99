package fetch

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// extractReadable converts raw HTML into a title and plain text.
// Readability handles article-shaped pages well; for everything else
// (listings, profiles, review pages) fall back to a visible-text walk.
func extractReadable(rawHTML string, pageURL *url.URL) (title, text string) {
	if pageURL == nil {
		pageURL = &url.URL{Scheme: "https", Host: "localhost"}
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), pageURL)
	if err == nil {
		title = strings.TrimSpace(article.Title)
		text = normalizeWhitespace(article.TextContent)
	}

	if text != "" {
		return title, text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return title, ""
	}

	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
		if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && og != "" {
			title = strings.TrimSpace(og)
		}
	}

	var parts []string
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if desc = strings.TrimSpace(desc); desc != "" {
			parts = append(parts, desc)
		}
	}

	for _, node := range doc.Find("body").Nodes {
		if body := visibleText(node); body != "" {
			parts = append(parts, body)
		}
	}

	return title, normalizeWhitespace(strings.Join(parts, "\n"))
}

// visibleText walks an HTML subtree collecting text nodes, skipping
// script, style and navigation chrome
func visibleText(n *html.Node) string {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "nav", "iframe", "svg":
			return ""
		}
	}

	if n.Type == html.TextNode {
		return n.Data
	}

	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := visibleText(c); t != "" {
			b.WriteString(t)
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

// normalizeWhitespace collapses runs of blank space while keeping
// paragraph breaks
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
