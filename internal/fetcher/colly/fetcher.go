// Package collyfetcher implements link discovery and content retrieval
// using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitedigest/internal/ratelimit"
	"github.com/JakeFAU/sitedigest/internal/scraper"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements scraper.LinkDiscoverer and scraper.ContentRetriever
// using the Colly collector. Pages are converted to markdown before
// being handed downstream.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
	logger        *zap.Logger
}

// New builds a Fetcher. The limiter may be nil to disable pacing.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = false
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		logger:        logger,
	}
}

// DiscoverLinks fetches the seed page and returns every anchor href on
// it, resolved to an absolute URL. Order follows document order.
func (f *Fetcher) DiscoverLinks(ctx context.Context, seedURL string) ([]string, error) {
	if err := f.waitLimiter(ctx, seedURL); err != nil {
		return nil, err
	}

	collector := f.newCollector()
	var (
		links    []string
		fetchErr error
	)
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		links = append(links, link)
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = classifyHTTPError(r, err)
	})

	if err := f.runCollector(ctx, collector, seedURL, &fetchErr); err != nil {
		return nil, fmt.Errorf("discover links: %w", err)
	}
	f.logger.Debug("discovered links", zap.String("seed_url", seedURL), zap.Int("count", len(links)))
	return links, nil
}

// RetrieveBatch fetches each URL and converts its HTML to markdown.
// Permanent per-URL failures (client errors, unconvertible pages) land
// in the failed map and do not stop the batch; a transient or context
// failure aborts the remaining URLs and is returned alongside the
// partial maps.
func (f *Fetcher) RetrieveBatch(ctx context.Context, urls []string) (map[string]string, map[string]error, error) {
	content := make(map[string]string, len(urls))
	failed := make(map[string]error)
	for _, pageURL := range urls {
		if err := ctx.Err(); err != nil {
			return content, failed, err
		}
		body, err := f.fetchPage(ctx, pageURL)
		if err != nil {
			if scraper.IsTransient(err) {
				return content, failed, fmt.Errorf("retrieve %s: %w", pageURL, err)
			}
			f.logger.Warn("page fetch failed permanently", zap.String("url", pageURL), zap.Error(err))
			failed[pageURL] = err
			continue
		}
		markdown, err := htmlToMarkdown(pageURL, body)
		if err != nil {
			// A page that will not convert never will on retry.
			f.logger.Warn("markdown conversion failed", zap.String("url", pageURL), zap.Error(err))
			failed[pageURL] = err
			continue
		}
		content[pageURL] = markdown
	}
	return content, failed, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	if err := f.waitLimiter(ctx, pageURL); err != nil {
		return nil, err
	}

	collector := f.newCollector()
	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = classifyHTTPError(r, err)
	})

	if err := f.runCollector(ctx, collector, pageURL, &fetchErr); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) newCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		// Visit returns the raw status error for non-2xx responses, so
		// the classified OnError result takes precedence; only errors
		// with no response seen default to transient.
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return scraper.MarkTransient(fmt.Errorf("colly visit failed: %w", err))
		}
		return nil
	}
}

func (f *Fetcher) waitLimiter(ctx context.Context, url string) error {
	if f.limiter == nil {
		return nil
	}
	return f.limiter.Wait(ctx, url)
}

// classifyHTTPError keeps server-side and throttling failures retryable
// while treating client errors as permanent.
func classifyHTTPError(r *colly.Response, err error) error {
	wrapped := fmt.Errorf("colly response failed: %w", err)
	if r == nil {
		return scraper.MarkTransient(wrapped)
	}
	if r.StatusCode >= http.StatusInternalServerError || r.StatusCode == http.StatusTooManyRequests {
		return scraper.MarkTransient(wrapped)
	}
	if r.StatusCode >= http.StatusBadRequest {
		return wrapped
	}
	return scraper.MarkTransient(wrapped)
}

func htmlToMarkdown(pageURL string, body []byte) (string, error) {
	base := ""
	if u, err := url.Parse(pageURL); err == nil {
		base = u.Scheme + "://" + u.Host
	}
	converter := md.NewConverter(base, true, nil)
	markdown, err := converter.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
