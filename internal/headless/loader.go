package headless

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/arko-chat/jsbridge/internal/cache"
	"github.com/hashicorp/go-retryablehttp"
)

const maxDocumentBytes = 16 << 20

// scriptTypes are the <script type> values that hold classic JavaScript.
var scriptTypes = map[string]bool{
	"":                         true,
	"text/javascript":          true,
	"application/javascript":   true,
	"application/x-javascript": true,
	"text/ecmascript":          true,
}

// Script is one unit of source to run in a document, in document order.
type Script struct {
	Name   string
	Source string
}

// Page is a fetched document reduced to what the headless runtime needs.
type Page struct {
	URL     *url.URL
	Title   string
	Scripts []Script
}

type LoaderOptions struct {
	Retries   int
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// Loader fetches pages and their external scripts. External scripts are
// cached by absolute URL; documents are always fetched fresh.
type Loader struct {
	client  *retryablehttp.Client
	scripts *cache.Cache[string]
	logger  *slog.Logger
}

func NewLoader(opts LoaderOptions, logger *slog.Logger) (*Loader, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	scripts, err := cache.New[string](opts.CacheSize, opts.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("creating script cache: %w", err)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	client.Logger = logger
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}

	return &Loader{
		client:  client,
		scripts: scripts,
		logger:  logger,
	}, nil
}

// Supports reports whether the loader can fetch URLs with scheme.
func Supports(scheme string) bool {
	switch scheme {
	case "http", "https", "file":
		return true
	}
	return false
}

// Fetch loads rawURL. A JavaScript resource becomes a page with a single
// script; anything else is parsed as HTML.
func (l *Loader) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	body, contentType, err := l.get(ctx, u)
	if err != nil {
		return nil, err
	}

	if isJavaScript(u, contentType) {
		return &Page{
			URL:     u,
			Scripts: []Script{{Name: u.String(), Source: string(body)}},
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", u, err)
	}

	page := &Page{
		URL:   u,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	doc.Find("script").Each(func(i int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		typ = strings.ToLower(strings.TrimSpace(typ))
		if !scriptTypes[typ] {
			l.logger.Debug("skipping script", "url", u.String(), "index", i, "type", typ)
			return
		}

		src, ok := s.Attr("src")
		if !ok {
			page.Scripts = append(page.Scripts, Script{
				Name:   fmt.Sprintf("%s#script%d", u, i),
				Source: s.Text(),
			})
			return
		}

		ref, err := u.Parse(strings.TrimSpace(src))
		if err != nil {
			l.logger.Warn("bad script src", "url", u.String(), "src", src, "err", err)
			return
		}
		source, err := l.script(ctx, ref)
		if err != nil {
			l.logger.Warn("failed to load script", "src", ref.String(), "err", err)
			return
		}
		page.Scripts = append(page.Scripts, Script{Name: ref.String(), Source: source})
	})

	return page, nil
}

func (l *Loader) script(ctx context.Context, ref *url.URL) (string, error) {
	return l.scripts.Get(ref.String(), func() (string, error) {
		body, _, err := l.get(ctx, ref)
		if err != nil {
			return "", err
		}
		return string(body), nil
	})
}

func (l *Loader) get(ctx context.Context, u *url.URL) ([]byte, string, error) {
	switch u.Scheme {
	case "file":
		body, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, "", err
		}
		return body, mime.TypeByExtension(path.Ext(u.Path)), nil

	case "http", "https":
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, "", fmt.Errorf("fetching %s: %s", u, resp.Status)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", u, err)
		}
		return body, resp.Header.Get("Content-Type"), nil

	default:
		return nil, "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func isJavaScript(u *url.URL, contentType string) bool {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			return strings.HasSuffix(mediaType, "javascript") || strings.HasSuffix(mediaType, "ecmascript")
		}
	}
	switch path.Ext(u.Path) {
	case ".js", ".mjs":
		return true
	}
	return false
}
