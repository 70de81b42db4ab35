// Package scraper implements content extraction for the URL-import creation
// path (§6.3 item 1): given a source URL, fetch the page and pull out a
// title and body. Adapted from the teacher's goquery/antchfx usage pattern
// (internal/parser/xpath.go) into a layered strategy — CSS heuristics first,
// XPath fallback second — rather than the teacher's rule-driven parser,
// since the spec needs one fixed "extract an article" operation rather than
// arbitrary user-defined scraping rules.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"

	"github.com/kaiven11/artical-generate/internal/types"
)

// Result is the raw material handed to the rest of the pipeline before any
// translation/optimisation happens.
type Result struct {
	Title     string
	Body      string
	WordCount int
}

// Scraper extracts article content from a URL.
type Scraper interface {
	Extract(ctx context.Context, sourceURL string) (*Result, error)
}

// titleSelectors and bodySelectors are tried in order; the first selector
// that yields non-empty text wins. Mirrors common article markup across
// news/blog platforms rather than any one site's DOM.
var titleSelectors = []string{
	"h1.article-title",
	"h1.entry-title",
	"article h1",
	"h1",
	"title",
}

var bodySelectors = []string{
	"article .article-body",
	"article .entry-content",
	"div.post-content",
	"article",
	"main",
}

// titleXPath and bodyXPath back up the CSS selectors when goquery finds
// nothing — some pages hide content behind structures CSS alone won't
// reliably pick out (deeply nested custom elements, attribute-gated divs).
const (
	titleXPath = "//h1"
	bodyXPath  = "//*[self::article or contains(@class,'content') or contains(@class,'body')]"
)

type defaultScraper struct {
	client *http.Client
	logger *slog.Logger
}

func New(client *http.Client, logger *slog.Logger) Scraper {
	if client == nil {
		client = http.DefaultClient
	}
	return &defaultScraper{client: client, logger: logger.With("component", "scraper")}
}

func (s *defaultScraper) Extract(ctx context.Context, sourceURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &types.TransportError{Operation: "scrape", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &types.TransportError{Operation: "scrape", StatusCode: resp.StatusCode, Err: fmt.Errorf("fetch failed")}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := firstNonEmpty(doc, titleSelectors)
	body := firstNonEmpty(doc, bodySelectors)

	if title == "" || body == "" {
		s.logger.Debug("css selectors found nothing, falling back to xpath", "url", sourceURL)
		htmlDoc, parseErr := htmlquery.Parse(bytes.NewReader(raw))
		if parseErr == nil {
			if title == "" {
				if node := htmlquery.FindOne(htmlDoc, titleXPath); node != nil {
					title = strings.TrimSpace(htmlquery.InnerText(node))
				}
			}
			if body == "" {
				if node := htmlquery.FindOne(htmlDoc, bodyXPath); node != nil {
					body = strings.TrimSpace(htmlquery.InnerText(node))
				}
			}
		}
	}

	if body == "" {
		return nil, &types.ValidationError{Field: "source_url", Reason: "no extractable article body found"}
	}

	return &Result{
		Title:     title,
		Body:      body,
		WordCount: len(strings.Fields(body)),
	}, nil
}

func firstNonEmpty(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}
