// Package agent implements the offline cache and notification agent: a
// lifecycle-managed interceptor that serves hospital app traffic
// network-first with cached fallback and surfaces push notifications.
package agent

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/medicare-hms/offline-agent/internal/cache"
	"github.com/medicare-hms/offline-agent/internal/logger"
	"github.com/medicare-hms/offline-agent/internal/notify"
	"github.com/medicare-hms/offline-agent/internal/precache"
)

// State models the agent lifecycle. A successful install proceeds straight
// to activation (skip-waiting semantics); a failed install parks the agent
// as redundant.
type State int32

const (
	StateNew State = iota
	StateInstalling
	StateWaiting
	StateActivating
	StateActive
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	}
	return "unknown"
}

// Namespace name prefixes. The version suffix is bumped to force a purge of
// the previous namespaces at activation.
const (
	staticPrefix  = "medicare-static-"
	runtimePrefix = "medicare-runtime-"

	// legacyPrefix is carried over from earlier deployments. Nothing reads
	// or writes it; activation purges any leftover namespace built from it.
	legacyPrefix = "medicare-cache-"
)

// Config carries the static wiring of an Agent.
type Config struct {
	// Upstream is the origin of the hospital application.
	Upstream *url.URL
	// CDNHosts are the cross-origin hosts eligible for caching.
	CDNHosts []string
	// Version suffixes the namespace names.
	Version string
	// Manifest is the install-time asset fetch list (absolute URLs). When
	// empty, DefaultManifest(Upstream) is used.
	Manifest []string
}

// DefaultManifest returns the fixed install-time asset list for an origin.
func DefaultManifest(upstream *url.URL) []string {
	return []string{
		upstream.ResolveReference(&url.URL{Path: "/"}).String(),
		upstream.ResolveReference(&url.URL{Path: "/static/manifest.json"}).String(),
		"https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css",
		"https://cdn.jsdelivr.net/npm/bootstrap-icons@1.11.3/font/bootstrap-icons.css",
		"https://fonts.googleapis.com/css2?family=Inter:wght@300;400;500;600;700&display=swap",
	}
}

// DefaultCDNHosts are the cross-origin hosts the default manifest pulls from.
var DefaultCDNHosts = []string{"cdn.jsdelivr.net", "fonts.googleapis.com", "fonts.gstatic.com"}

type Agent struct {
	cfg       Config
	kv        cache.KV
	precacher *precache.Precacher
	displayer notify.Displayer
	windows   notify.Windows

	// client performs upstream fetches.
	client *http.Client

	state       atomic.Int32
	controlling atomic.Bool
}

func New(cfg Config, kv cache.KV, displayer notify.Displayer, windows notify.Windows) *Agent {
	if len(cfg.Manifest) == 0 {
		cfg.Manifest = DefaultManifest(cfg.Upstream)
	}
	if len(cfg.CDNHosts) == 0 {
		cfg.CDNHosts = DefaultCDNHosts
	}
	return &Agent{
		cfg:       cfg,
		kv:        kv,
		precacher: precache.New(kv),
		displayer: displayer,
		windows:   windows,
		client:    &http.Client{Timeout: 20 * time.Second},
	}
}

func (a *Agent) StaticNamespace() string  { return staticPrefix + a.cfg.Version }
func (a *Agent) RuntimeNamespace() string { return runtimePrefix + a.cfg.Version }

// State returns the current lifecycle state.
func (a *Agent) State() State { return State(a.state.Load()) }

// Controlling reports whether the agent has claimed the request path.
func (a *Agent) Controlling() bool { return a.controlling.Load() }

func (a *Agent) setState(s State) {
	a.state.Store(int32(s))
	logger.Info("agent state changed", "state", s.String())
}

// Install populates the static namespace from the asset manifest. Population
// is all-or-nothing: any failed fetch aborts the install, the partial
// namespace is dropped and the agent is parked as redundant. A successful
// install leaves the agent waiting; callers follow up with Activate.
func (a *Agent) Install(ctx context.Context) error {
	a.setState(StateInstalling)
	if err := a.precacher.Populate(ctx, a.StaticNamespace(), a.cfg.Manifest); err != nil {
		_ = a.kv.DropNamespace(a.StaticNamespace())
		a.setState(StateRedundant)
		return errors.Wrap(err, "install: populate static namespace")
	}

	// Best-effort expansion from the cached root document.
	rootURL := a.cfg.Upstream.ResolveReference(&url.URL{Path: "/"}).String()
	if raw, err := a.kv.Get(a.StaticNamespace(), cache.Key(http.MethodGet, rootURL)); err == nil {
		if entry, err := cache.DecodeEntry(raw); err == nil {
			a.precacher.Expand(ctx, a.StaticNamespace(), rootURL, entry.Body)
		}
	}

	a.setState(StateWaiting)
	return nil
}

// Activate drops every namespace whose name is not one of the two current
// names, then claims the request path. Repeated activation with unchanged
// names never touches the current namespaces.
func (a *Agent) Activate(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	a.setState(StateActivating)

	keep := map[string]bool{
		a.StaticNamespace():  true,
		a.RuntimeNamespace(): true,
	}
	names, err := a.kv.Namespaces()
	if err != nil {
		a.setState(StateRedundant)
		return errors.Wrap(err, "activate: list namespaces")
	}
	for _, name := range names {
		if keep[name] {
			continue
		}
		if err := a.kv.DropNamespace(name); err != nil {
			a.setState(StateRedundant)
			return errors.Wrapf(err, "activate: drop namespace %s", name)
		}
		logger.Info("purged stale namespace", "namespace", name)
	}
	if err := a.kv.EnsureNamespace(a.StaticNamespace()); err != nil {
		a.setState(StateRedundant)
		return errors.Wrap(err, "activate: ensure static namespace")
	}
	if err := a.kv.EnsureNamespace(a.RuntimeNamespace()); err != nil {
		a.setState(StateRedundant)
		return errors.Wrap(err, "activate: ensure runtime namespace")
	}

	a.setState(StateActive)
	a.controlling.Store(true)
	return nil
}

// HandlePush builds a notification from a push payload and displays it. The
// handler does not return until display has completed.
func (a *Agent) HandlePush(ctx context.Context, payload []byte) (notify.Notification, error) {
	n := notify.FromPayload(payload)
	if err := a.displayer.Display(ctx, n); err != nil {
		return n, errors.Wrap(err, "display notification")
	}
	return n, nil
}

// HandleClick closes the notification and opens or focuses a window at the
// URL carried in its data payload, defaulting to root.
func (a *Agent) HandleClick(ctx context.Context, n notify.Notification) error {
	if err := a.displayer.Close(ctx, n.ID); err != nil {
		logger.Warn("closing notification failed", "id", n.ID, "error", err)
	}
	target := n.Data.URL
	if target == "" {
		target = "/"
	}
	return a.windows.OpenOrFocus(ctx, target)
}
