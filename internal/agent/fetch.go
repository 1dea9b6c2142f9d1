package agent

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/medicare-hms/offline-agent/internal/cache"
	"github.com/medicare-hms/offline-agent/internal/logger"
)

// MaxCacheBodySize caps the response bodies eligible for caching. Larger
// responses are served to the page in full but never stored.
const MaxCacheBodySize = 4 * 1024 * 1024 // 4MB

// Source records where a fetch result came from.
type Source int

const (
	SourceNetwork Source = iota
	SourceCache
	SourceOffline
	SourcePassthrough
)

func (s Source) String() string {
	switch s {
	case SourceNetwork:
		return "network"
	case SourceCache:
		return "cache"
	case SourceOffline:
		return "offline"
	case SourcePassthrough:
		return "passthrough"
	}
	return "unknown"
}

// Effect is a cache write scheduled after a response has been returned. The
// runtime executes effects detached; their failures are swallowed.
type Effect struct {
	Namespace string
	Key       string
	Entry     cache.Entry
}

// FetchResult is the outcome of handling one fetch event: the response to
// serve plus any background effects to run without blocking it.
type FetchResult struct {
	Entry      cache.Entry
	Source     Source
	Background []Effect
}

// HandleFetch applies the network-first-with-fallback strategy to a single
// request. Non-GET requests and cross-origin requests outside the approved
// CDN hosts pass through untouched.
func (a *Agent) HandleFetch(ctx context.Context, r *http.Request) (*FetchResult, error) {
	target := a.targetURL(r)

	if r.Method != http.MethodGet || !a.cacheable(target) {
		return a.PassThrough(ctx, r)
	}

	key := cache.Key(http.MethodGet, target.String())

	entry, err := a.doUpstream(ctx, r, target)
	if err == nil {
		res := &FetchResult{Entry: entry, Source: SourceNetwork}
		if entry.Status == http.StatusOK && len(entry.Body) <= MaxCacheBodySize {
			res.Background = append(res.Background, Effect{
				Namespace: a.RuntimeNamespace(),
				Key:       key,
				Entry:     entry,
			})
		}
		return res, nil
	}
	logger.Warn("network fetch failed, trying cache", "url", target.String(), "error", err)

	if raw, merr := a.kv.Match(key); merr == nil {
		if cached, derr := cache.DecodeEntry(raw); derr == nil {
			return &FetchResult{Entry: cached, Source: SourceCache}, nil
		}
	}

	if !isNavigation(r) {
		return nil, errors.Wrap(err, "fetch")
	}

	rootKey := cache.Key(http.MethodGet, a.cfg.Upstream.ResolveReference(&url.URL{Path: "/"}).String())
	if raw, merr := a.kv.Match(rootKey); merr == nil {
		if cached, derr := cache.DecodeEntry(raw); derr == nil {
			return &FetchResult{Entry: cached, Source: SourceCache}, nil
		}
	}

	return &FetchResult{Entry: offlineEntry(), Source: SourceOffline}, nil
}

// PassThrough forwards a request upstream with no cache involvement. Used
// for requests from pages the agent does not control yet.
func (a *Agent) PassThrough(ctx context.Context, r *http.Request) (*FetchResult, error) {
	entry, err := a.doUpstream(ctx, r, a.targetURL(r))
	if err != nil {
		return nil, errors.Wrap(err, "passthrough fetch")
	}
	return &FetchResult{Entry: entry, Source: SourcePassthrough}, nil
}

// RunEffects executes background cache writes. Store failures are logged and
// swallowed; they are never surfaced to the page.
func (a *Agent) RunEffects(effects []Effect) {
	for _, e := range effects {
		encoded, err := cache.EncodeEntry(e.Entry)
		if err != nil {
			logger.Warn("encoding cache entry failed", "key", e.Key, "error", err)
			continue
		}
		if err := a.kv.Put(e.Namespace, e.Key, encoded); err != nil {
			logger.Warn("background cache store failed", "key", e.Key, "error", err)
		}
	}
}

// targetURL resolves the absolute URL a request is aimed at. Absolute-form
// request URLs (forward-proxy style, used for CDN assets) are taken as-is;
// origin-form URLs resolve against the upstream origin.
func (a *Agent) targetURL(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}
	return a.cfg.Upstream.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
}

// cacheable reports whether a target is same-origin or on an approved CDN
// host.
func (a *Agent) cacheable(target *url.URL) bool {
	if target.Host == a.cfg.Upstream.Host {
		return true
	}
	for _, h := range a.cfg.CDNHosts {
		if target.Host == h {
			return true
		}
	}
	return false
}

// isNavigation reports whether a request is a page navigation.
func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// doUpstream performs the live network fetch and snapshots the response.
func (a *Agent) doUpstream(ctx context.Context, r *http.Request, target *url.URL) (cache.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return cache.Entry{}, err
	}
	copyHeader(req.Header, r.Header)

	resp, err := a.client.Do(req)
	if err != nil {
		return cache.Entry{}, err
	}
	defer resp.Body.Close()

	// The full body is buffered so the page always sees the complete live
	// response; whether it is small enough to cache is the caller's call.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cache.Entry{}, err
	}
	return cache.Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	}, nil
}

// hop-by-hop headers are not forwarded upstream.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}
