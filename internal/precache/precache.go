// Package precache populates the static asset namespace at install time.
package precache

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/sync/errgroup"

	"github.com/medicare-hms/offline-agent/internal/cache"
	"github.com/medicare-hms/offline-agent/internal/logger"
)

const (
	RequestTimeout = 20 * time.Second

	// populateParallelism bounds concurrent manifest fetches during install.
	populateParallelism = 4
)

type Precacher struct {
	c  *colly.Collector
	kv cache.KV
}

func New(kv cache.KV) *Precacher {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
	)
	c.SetRequestTimeout(RequestTimeout)
	return &Precacher{c: c, kv: kv}
}

// Populate fetches every manifest URL and stores the responses in the given
// namespace. Population is all-or-nothing: the first failed fetch aborts and
// its error is returned, failing the install transition.
func (p *Precacher) Populate(ctx context.Context, namespace string, urls []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(populateParallelism)
	for _, u := range urls {
		g.Go(func() error {
			_, err := p.fetchInto(ctx, namespace, u)
			return err
		})
	}
	return g.Wait()
}

// Expand scans an already-fetched root document for same-origin stylesheet
// and icon links and caches them opportunistically. Failures here are logged
// and swallowed; expansion never affects the install outcome.
func (p *Precacher) Expand(ctx context.Context, namespace, baseURL string, rootHTML []byte) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rootHTML))
	if err != nil {
		return
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return
	}
	seen := make(map[string]struct{})
	doc.Find(`link[rel="stylesheet"], link[rel="icon"], link[rel="apple-touch-icon"]`).Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if !u.IsAbs() {
			u = base.ResolveReference(u)
		}
		if u.Host != base.Host {
			return
		}
		abs := u.String()
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		if _, err := p.fetchInto(ctx, namespace, abs); err != nil {
			logger.Warn("precache expansion skipped asset", "url", abs, "error", err)
		}
	})
}

// fetchInto retrieves a single URL and stores the response snapshot keyed by
// GET|url. Returns the response body for callers that want to inspect it.
func (p *Precacher) fetchInto(ctx context.Context, namespace, rawURL string) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var (
		body   []byte
		status int
		header http.Header
	)

	// Clone copies collector configuration but not callbacks; register them
	// per fetch.
	c := p.c.Clone()
	c.Context = ctx
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,text/css,application/json,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
		if r.Headers != nil {
			header = r.Headers.Clone()
		}
	})
	if err := c.Visit(rawURL); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	entry := cache.Entry{
		Status:   status,
		Header:   header,
		Body:     body,
		StoredAt: time.Now(),
	}
	encoded, err := cache.EncodeEntry(entry)
	if err != nil {
		return nil, err
	}
	if err := p.kv.Put(namespace, cache.Key(http.MethodGet, rawURL), encoded); err != nil {
		return nil, err
	}
	return body, nil
}
