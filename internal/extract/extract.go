// Package extract turns files and web pages into plain text ready for
// chunking. It handles plain-text files directly, strips markup from HTML
// with readability (goquery as fallback), and can walk a site within one
// host. Binary formats are rejected, not guessed at.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/juniperkb/juniper/internal/log"
)

var (
	// ErrUnsupportedFormat means the file does not hold plain text.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNoContent means extraction succeeded but produced no usable text.
	ErrNoContent = errors.New("no extractable text")
)

const (
	// maxResponseSize caps how much of a remote page is read.
	maxResponseSize = 10 << 20

	// binarySniffLen is how many leading bytes are inspected for NUL
	// when deciding whether a file is text.
	binarySniffLen = 8000

	maxFileSize = 32 << 20
)

// textExtensions are the file types read verbatim. HTML files go through
// markup stripping instead.
var textExtensions = map[string]bool{
	".txt": true, ".text": true, ".md": true, ".markdown": true,
	".rst": true, ".log": true, ".csv": true, ".json": true,
	".yaml": true, ".yml": true, ".toml": true,
}

var htmlExtensions = map[string]bool{
	".html": true, ".htm": true, ".xhtml": true,
}

// Extractor fetches and cleans source material.
type Extractor struct {
	client *http.Client
	logger log.Logger
}

// New builds an Extractor. client and logger may be nil.
func New(client *http.Client, logger log.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Extractor{client: client, logger: logger.With("component", "extract")}
}

// FromFile reads a local text or HTML file and returns its plain-text
// content. Unknown extensions and binary content are rejected with
// ErrUnsupportedFormat.
func (e *Extractor) FromFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	isText, isHTML := textExtensions[ext], htmlExtensions[ext]
	if !isText && !isHTML {
		return "", fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if looksBinary(data) {
		return "", fmt.Errorf("%s holds binary data: %w", path, ErrUnsupportedFormat)
	}

	if isHTML {
		text, err := htmlToText(bytes.NewReader(data), nil)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", path, err)
		}
		return text, nil
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("%s: %w", path, ErrNoContent)
	}
	return text, nil
}

// FromURL fetches a page and returns its readable text. Readability
// extraction is tried first; pages it cannot parse fall back to a plain
// markup strip.
func (e *Extractor) FromURL(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("scheme %q: %w", u.Scheme, ErrUnsupportedFormat)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	e.logger.Debug("page fetched", "url", rawURL, "bytes", len(body))

	text, err := htmlToText(bytes.NewReader(body), u)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", rawURL, err)
	}
	return text, nil
}

// htmlToText runs readability and falls back to stripping tags with
// goquery when readability finds no article body.
func htmlToText(r io.Reader, pageURL *url.URL) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	if pageURL != nil {
		article, err := readability.FromReader(bytes.NewReader(data), pageURL)
		if err == nil {
			if text := normalizeText(article.TextContent); text != "" {
				return text, nil
			}
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template").Remove()
	text := normalizeText(doc.Find("body").Text())
	if text == "" {
		// Fragment without a body element.
		text = normalizeText(doc.Text())
	}
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// normalizeText collapses runs of whitespace inside lines and drops blank
// lines, keeping paragraph breaks so the chunker still sees structure.
func normalizeText(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n\n")
}

func looksBinary(data []byte) bool {
	n := len(data)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}
