package main

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/medicare-hms/offline-agent/internal/agent"
	"github.com/medicare-hms/offline-agent/internal/cache"
	"github.com/medicare-hms/offline-agent/internal/config"
	"github.com/medicare-hms/offline-agent/internal/logger"
	"github.com/medicare-hms/offline-agent/internal/server"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	cfg, err := config.ParseEnv()
	if err != nil {
		logger.Error("loading configuration failed", "error", err)
		os.Exit(1)
	}
	upstream, err := url.Parse(cfg.Upstream)
	if err != nil || upstream.Host == "" {
		logger.Error("invalid upstream origin", "upstream", cfg.Upstream, "error", err)
		os.Exit(1)
	}
	logger.Info("starting offline agent", "upstream", upstream.String(), "version", cfg.CacheVersion)

	kv, closeKV, err := openCache(cfg)
	if err != nil {
		logger.Error("opening cache failed", "error", err)
		os.Exit(1)
	}
	defer closeKV()

	hub := server.NewHub()
	ag := agent.New(agent.Config{
		Upstream: upstream,
		CDNHosts: cfg.CDNHosts,
		Version:  cfg.CacheVersion,
	}, kv, hub, hub)

	ctx := context.Background()
	if _, err := ag.Dispatch(ctx, agent.Event{Kind: agent.EventInstall}); err != nil {
		// The agent never activates with a partial static cache.
		logger.Error("install failed", "error", err)
		os.Exit(1)
	}
	if _, err := ag.Dispatch(ctx, agent.Event{Kind: agent.EventActivate}); err != nil {
		logger.Error("activation failed", "error", err)
		os.Exit(1)
	}

	srv := server.New(ag, hub)
	go func() {
		if err := srv.Start(cfg.Listen); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("agent serving", "addr", cfg.Listen, "state", ag.State().String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// openCache returns either a client for a running cache daemon or a locally
// opened store. When a socket is configured but the daemon is down, the
// daemon is started and reconnection is retried briefly.
func openCache(cfg *config.Config) (cache.KV, func(), error) {
	if cfg.CacheSock == "" {
		_ = os.MkdirAll(filepath.Dir(cfg.CacheDB), 0o755)
		store, err := cache.Open(cfg.CacheDB)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}

	if client, err := connectCache(cfg.CacheSock); err == nil {
		return client, func() {}, nil
	}
	logger.Warn("cache daemon not reachable, attempting to start it", "socket", cfg.CacheSock)
	if err := startCacheDaemon(); err != nil {
		logger.Error("starting cache daemon failed", "error", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if client, err := connectCache(cfg.CacheSock); err == nil {
			return client, func() {}, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	client, err := connectCache(cfg.CacheSock)
	if err != nil {
		return nil, nil, err
	}
	return client, func() {}, nil
}

func connectCache(sock string) (cache.KV, error) {
	// quick probe
	conn, err := net.DialTimeout("unix", sock, 200*time.Millisecond)
	if err != nil {
		return nil, err
	}
	_ = conn.Close()
	return cache.NewClient(sock), nil
}

func startCacheDaemon() error {
	// 1) Try cache binary next to this executable
	if exePath, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exePath), "medicare-agent-cache")
		if _, statErr := os.Stat(sibling); statErr == nil {
			cmd := exec.Command(sibling)
			cmd.Env = os.Environ()
			return cmd.Start()
		}
	}

	// 2) Try PATH binary
	if path, err := exec.LookPath("medicare-agent-cache"); err == nil {
		cmd := exec.Command(path)
		cmd.Env = os.Environ()
		return cmd.Start()
	}

	return exec.ErrNotFound
}
