package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juniperkb/juniper/internal/log"
)

func testExtractor() *Extractor {
	return New(http.DefaultClient, log.NewNop())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// === FromFile ===

func TestFromFilePlainText(t *testing.T) {
	e := testExtractor()
	path := writeFile(t, "notes.md", "# Title\n\nSome body text.\n")

	got, err := e.FromFile(path)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}
	if !strings.Contains(got, "Some body text.") {
		t.Errorf("FromFile() = %q, want body text preserved", got)
	}
}

func TestFromFileHTMLStripsMarkup(t *testing.T) {
	e := testExtractor()
	path := writeFile(t, "page.html",
		`<html><head><style>body{color:red}</style></head><body><p>Visible words.</p><script>var x=1;</script></body></html>`)

	got, err := e.FromFile(path)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}
	if !strings.Contains(got, "Visible words.") {
		t.Errorf("FromFile() = %q, want paragraph text", got)
	}
	if strings.Contains(got, "var x") || strings.Contains(got, "color:red") {
		t.Errorf("FromFile() = %q, script/style content leaked", got)
	}
}

func TestFromFileRejectsUnknownExtension(t *testing.T) {
	e := testExtractor()
	path := writeFile(t, "doc.pdf", "%PDF-1.4 pretend")

	if _, err := e.FromFile(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("FromFile(.pdf) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestFromFileRejectsBinaryContent(t *testing.T) {
	e := testExtractor()
	path := writeFile(t, "fake.txt", "text\x00then binary")

	if _, err := e.FromFile(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("FromFile(binary) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestFromFileEmpty(t *testing.T) {
	e := testExtractor()
	path := writeFile(t, "empty.txt", "   \n ")

	if _, err := e.FromFile(path); !errors.Is(err, ErrNoContent) {
		t.Errorf("FromFile(empty) error = %v, want ErrNoContent", err)
	}
}

// === FromURL ===

func TestFromURLReadableArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Policy</title></head><body>
			<article><h1>Returns</h1>
			<p>Our return policy is 30 days. No questions asked. Items must be unused
			and in their original packaging for the refund to be processed.</p>
			<p>Refunds are issued to the original payment method within five business
			days of the returned item arriving at our warehouse.</p>
			</article></body></html>`)
	}))
	defer srv.Close()

	got, err := testExtractor().FromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FromURL() error = %v", err)
	}
	if !strings.Contains(got, "30 days") {
		t.Errorf("FromURL() = %q, want article text", got)
	}
}

func TestFromURLFallsBackToMarkupStrip(t *testing.T) {
	// Too little content for readability; the goquery fallback still
	// recovers the visible text.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div>tiny page</div><script>nope()</script></body></html>`)
	}))
	defer srv.Close()

	got, err := testExtractor().FromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FromURL() error = %v", err)
	}
	if !strings.Contains(got, "tiny page") || strings.Contains(got, "nope()") {
		t.Errorf("FromURL() = %q, want stripped visible text", got)
	}
}

func TestFromURLNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := testExtractor().FromURL(context.Background(), srv.URL); err == nil {
		t.Error("FromURL(404) error = nil, want error")
	}
}

func TestFromURLRejectsScheme(t *testing.T) {
	if _, err := testExtractor().FromURL(context.Background(), "ftp://example.com/x"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("FromURL(ftp) error = %v, want ErrUnsupportedFormat", err)
	}
}

// === Crawl ===

func TestCrawlStaysOnHostAndCollectsPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>Home page content.</p>
			<a href="/about">about</a>
			<a href="http://other.invalid/away">offsite</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>About page content.</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pages, err := testExtractor().Crawl(context.Background(), srv.URL, 10)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("Crawl() returned %d pages, want 2: %+v", len(pages), pages)
	}
	var all string
	for _, p := range pages {
		if !strings.HasPrefix(p.URL, srv.URL) {
			t.Errorf("page %q left the start host", p.URL)
		}
		all += p.Text
	}
	if !strings.Contains(all, "Home page content.") || !strings.Contains(all, "About page content.") {
		t.Errorf("crawled text missing expected pages: %q", all)
	}
}

func TestCrawlRespectsMaxPages(t *testing.T) {
	mux := http.NewServeMux()
	for i := 0; i < 5; i++ {
		i := i
		mux.HandleFunc(fmt.Sprintf("/p%d", i), func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, `<html><body><p>Page %d body.</p><a href="/p%d">next</a></body></html>`, i, i+1)
		})
	}
	mux.HandleFunc("/p5", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>Last body.</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pages, err := testExtractor().Crawl(context.Background(), srv.URL+"/p0", 2)
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if len(pages) > 2 {
		t.Errorf("Crawl() fetched %d pages, want at most 2", len(pages))
	}
}

func TestCrawlUnreachableStart(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // immediately unreachable

	if _, err := testExtractor().Crawl(context.Background(), srv.URL, 3); err == nil {
		t.Error("Crawl(unreachable) error = nil, want error")
	}
}
