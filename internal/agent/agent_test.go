package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicare-hms/offline-agent/internal/cache"
	"github.com/medicare-hms/offline-agent/internal/notify"
)

type fakeDisplayer struct {
	displayed []notify.Notification
	closed    []uuid.UUID
}

func (f *fakeDisplayer) Display(_ context.Context, n notify.Notification) error {
	f.displayed = append(f.displayed, n)
	return nil
}

func (f *fakeDisplayer) Close(_ context.Context, id uuid.UUID) error {
	f.closed = append(f.closed, id)
	return nil
}

type fakeWindows struct {
	opened []string
}

func (f *fakeWindows) OpenOrFocus(_ context.Context, url string) error {
	f.opened = append(f.opened, url)
	return nil
}

func newTestAgent(t *testing.T, upstream string, kv cache.KV, manifest []string) (*Agent, *fakeDisplayer, *fakeWindows) {
	t.Helper()
	u, err := url.Parse(upstream)
	require.NoError(t, err)
	d := &fakeDisplayer{}
	w := &fakeWindows{}
	ag := New(Config{
		Upstream: u,
		Version:  "v1",
		Manifest: manifest,
	}, kv, d, w)
	return ag, d, w
}

func manifestUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><link rel="stylesheet" href="/static/site.css"></head><body>home</body></html>`))
	})
	mux.HandleFunc("/static/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"MediCare Hospital"}`))
	})
	mux.HandleFunc("/static/site.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("body{}"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestInstallPopulatesStaticNamespace(t *testing.T) {
	srv := manifestUpstream(t)
	kv := cache.NewMemory()
	ag, _, _ := newTestAgent(t, srv.URL, kv, []string{srv.URL + "/", srv.URL + "/static/manifest.json"})

	require.NoError(t, ag.Install(context.Background()))
	assert.Equal(t, StateWaiting, ag.State())

	raw, err := kv.Get(ag.StaticNamespace(), cache.Key(http.MethodGet, srv.URL+"/"))
	require.NoError(t, err)
	entry, err := cache.DecodeEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, entry.Status)
	assert.Contains(t, string(entry.Body), "home")

	_, err = kv.Get(ag.StaticNamespace(), cache.Key(http.MethodGet, srv.URL+"/static/manifest.json"))
	require.NoError(t, err)

	// Expansion picked up the stylesheet referenced by the root document.
	_, err = kv.Get(ag.StaticNamespace(), cache.Key(http.MethodGet, srv.URL+"/static/site.css"))
	require.NoError(t, err)
}

func TestInstallIsAllOrNothing(t *testing.T) {
	srv := manifestUpstream(t)
	kv := cache.NewMemory()
	ag, _, _ := newTestAgent(t, srv.URL, kv, []string{
		srv.URL + "/",
		srv.URL + "/static/does-not-exist.css",
	})

	err := ag.Install(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateRedundant, ag.State())
	assert.False(t, ag.Controlling())

	// The partially populated namespace is gone.
	names, err := kv.Namespaces()
	require.NoError(t, err)
	assert.NotContains(t, names, ag.StaticNamespace())
}

func TestActivatePurgesStaleNamespaces(t *testing.T) {
	kv := cache.NewMemory()
	require.NoError(t, kv.EnsureNamespace("medicare-static-v0"))
	require.NoError(t, kv.EnsureNamespace("medicare-runtime-v0"))
	require.NoError(t, kv.EnsureNamespace("medicare-cache-v0"))

	ag, _, _ := newTestAgent(t, "http://hospital.local", kv, []string{"unused"})
	require.NoError(t, ag.Activate(context.Background()))
	assert.Equal(t, StateActive, ag.State())
	assert.True(t, ag.Controlling())

	names, err := kv.Namespaces()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ag.StaticNamespace(), ag.RuntimeNamespace()}, names)
}

func TestActivateIsIdempotent(t *testing.T) {
	kv := cache.NewMemory()
	ag, _, _ := newTestAgent(t, "http://hospital.local", kv, []string{"unused"})

	require.NoError(t, ag.Activate(context.Background()))
	require.NoError(t, kv.Put(ag.StaticNamespace(), "GET|http://hospital.local/", []byte("kept")))
	require.NoError(t, ag.Activate(context.Background()))

	v, err := kv.Get(ag.StaticNamespace(), "GET|http://hospital.local/")
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), v)
}

func TestVersionBumpPurgesPreviousNamespaces(t *testing.T) {
	kv := cache.NewMemory()
	u, err := url.Parse("http://hospital.local")
	require.NoError(t, err)

	v1 := New(Config{Upstream: u, Version: "v1", Manifest: []string{"unused"}}, kv, &fakeDisplayer{}, &fakeWindows{})
	require.NoError(t, v1.Activate(context.Background()))
	require.NoError(t, kv.Put(v1.RuntimeNamespace(), "GET|http://hospital.local/a", []byte("old")))

	v2 := New(Config{Upstream: u, Version: "v2", Manifest: []string{"unused"}}, kv, &fakeDisplayer{}, &fakeWindows{})
	require.NoError(t, v2.Activate(context.Background()))

	names, err := kv.Namespaces()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{v2.StaticNamespace(), v2.RuntimeNamespace()}, names)
}

func TestHandlePushDisplaysNotification(t *testing.T) {
	ag, d, _ := newTestAgent(t, "http://hospital.local", cache.NewMemory(), []string{"unused"})

	n, err := ag.HandlePush(context.Background(), []byte("Appointment confirmed"))
	require.NoError(t, err)
	assert.Equal(t, "MediCare Hospital", n.Title)
	assert.Equal(t, "Appointment confirmed", n.Body)
	require.Len(t, d.displayed, 1)
	assert.Equal(t, n.ID, d.displayed[0].ID)
}

func TestHandleClickOpensTargetWindow(t *testing.T) {
	ag, d, w := newTestAgent(t, "http://hospital.local", cache.NewMemory(), []string{"unused"})

	n := notify.FromPayload([]byte(`{"body":"Reminder","url":"/patient/appointments/42"}`))
	require.NoError(t, ag.HandleClick(context.Background(), n))

	require.Len(t, w.opened, 1)
	assert.Equal(t, "/patient/appointments/42", w.opened[0])
	require.Len(t, d.closed, 1)
	assert.Equal(t, n.ID, d.closed[0])
}

func TestHandleClickDefaultsToRoot(t *testing.T) {
	ag, _, w := newTestAgent(t, "http://hospital.local", cache.NewMemory(), []string{"unused"})

	n := notify.Notification{ID: uuid.New()}
	require.NoError(t, ag.HandleClick(context.Background(), n))
	require.Len(t, w.opened, 1)
	assert.Equal(t, "/", w.opened[0])
}

func TestDispatchRejectsUnknownEvents(t *testing.T) {
	ag, _, _ := newTestAgent(t, "http://hospital.local", cache.NewMemory(), []string{"unused"})

	_, err := ag.Dispatch(context.Background(), Event{Kind: EventKind(99)})
	assert.Error(t, err)

	_, err = ag.Dispatch(context.Background(), Event{Kind: EventNotificationClick})
	assert.Error(t, err)
}
