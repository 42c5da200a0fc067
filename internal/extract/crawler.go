package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gocolly/colly/v2"
)

const (
	// DefaultMaxPages bounds a crawl that does not say otherwise.
	DefaultMaxPages = 20

	crawlMaxDepth = 3
)

// Page is one crawled document: the URL it was fetched from and its
// extracted plain text. Pages whose markup yielded no text are skipped.
type Page struct {
	URL  string
	Text string
}

// Crawl walks HTML pages reachable from startURL within the same host,
// breadth-limited by depth and capped at maxPages fetches. Extraction
// failures on individual pages are logged and skipped; the crawl only
// fails as a whole when the start page is unreachable.
func (e *Extractor) Crawl(ctx context.Context, startURL string, maxPages int) ([]Page, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", startURL, err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("scheme %q: %w", start.Scheme, ErrUnsupportedFormat)
	}

	var (
		mu      sync.Mutex
		pages   []Page
		visited int
	)

	c := colly.NewCollector(
		colly.AllowedDomains(start.Hostname()),
		colly.MaxDepth(crawlMaxDepth),
	)
	c.WithTransport(e.client.Transport)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		mu.Lock()
		stop := visited >= maxPages
		if !stop {
			visited++
		}
		mu.Unlock()
		if stop {
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		ct := strings.ToLower(r.Headers.Get("Content-Type"))
		if ct != "" && !strings.Contains(ct, "html") {
			return
		}
		text, err := htmlToText(bytes.NewReader(r.Body), r.Request.URL)
		if err != nil || text == "" {
			e.logger.Debug("page skipped", "url", r.Request.URL.String(), "error", err)
			return
		}
		mu.Lock()
		pages = append(pages, Page{URL: r.Request.URL.String(), Text: text})
		mu.Unlock()
	})

	c.OnHTML("a[href]", func(el *colly.HTMLElement) {
		link := el.Request.AbsoluteURL(el.Attr("href"))
		if link == "" {
			return
		}
		// Errors here are expected: off-host links, revisits, depth.
		_ = el.Request.Visit(link)
	})

	if err := c.Visit(start.String()); err != nil {
		return nil, fmt.Errorf("crawl %s: %w", startURL, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("crawl %s: %w", startURL, ErrNoContent)
	}
	return pages, nil
}
