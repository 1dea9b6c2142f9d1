// Package server exposes the agent over HTTP: a catch-all proxy route
// through the fetch handler, a push intake endpoint, a notification click
// endpoint and an SSE stream for connected clients.
package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/medicare-hms/offline-agent/internal/agent"
	"github.com/medicare-hms/offline-agent/internal/notify"
)

// maxPushPayload caps the accepted push message size.
const maxPushPayload = 4 * 1024

// displayedLimit bounds how many recent notifications are kept for click
// handling.
const displayedLimit = 128

type Server struct {
	e     *echo.Echo
	agent *agent.Agent
	hub   *Hub

	limiter *rateLimiter

	mu        sync.Mutex
	displayed map[uuid.UUID]notify.Notification
	order     []uuid.UUID
}

func New(ag *agent.Agent, hub *Hub) *Server {
	s := &Server{
		e:         echo.New(),
		agent:     ag,
		hub:       hub,
		limiter:   newRateLimiter(),
		displayed: make(map[uuid.UUID]notify.Notification),
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(middleware.Recover())

	s.e.GET("/healthz", s.health)
	s.e.GET("/events", hub.Stream)
	s.e.POST("/push", s.push)
	s.e.POST("/notifications/:id/click", s.click)
	s.e.Any("/*", s.proxy)
	return s
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start begins serving on addr and blocks.
func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"state":       s.agent.State().String(),
		"controlling": s.agent.Controlling(),
	})
}

// proxy routes every page request through the agent's fetch handler.
// Background effects come back detached and run after the response has been
// written, never delaying it.
func (s *Server) proxy(c echo.Context) error {
	var fetch *agent.FetchResult
	if s.agent.Controlling() {
		ev := agent.Event{Kind: agent.EventFetch, Request: c.Request()}
		res, err := s.agent.Dispatch(c.Request().Context(), ev)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		fetch = res.Fetch
	} else {
		// Uncontrolled pages reach the upstream untouched.
		res, err := s.agent.PassThrough(c.Request().Context(), c.Request())
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		fetch = res
	}

	if len(fetch.Background) > 0 {
		effects := fetch.Background
		go s.agent.RunEffects(effects)
	}

	entry := fetch.Entry
	h := c.Response().Header()
	for k, vv := range entry.Header {
		for _, v := range vv {
			h.Add(k, v)
		}
	}
	h.Set("X-Served-By", "medicare-offline-agent")
	h.Set("X-Cache-Source", fetch.Source.String())
	return c.Blob(entry.Status, entry.Header.Get("Content-Type"), entry.Body)
}

// push accepts a push message payload and displays the notification. The
// request is held open until display completes.
func (s *Server) push(c echo.Context) error {
	if !s.limiter.Allow(c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "push rate limit exceeded")
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPushPayload))
	if err != nil {
		payload = nil
	}

	ev := agent.Event{Kind: agent.EventPush, Payload: payload}
	res, err := s.agent.Dispatch(c.Request().Context(), ev)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	s.remember(*res.Notification)
	return c.JSON(http.StatusCreated, res.Notification)
}

// click resolves a displayed notification by id and runs the click handler.
func (s *Server) click(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification id")
	}
	n, ok := s.forget(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown notification")
	}

	ev := agent.Event{Kind: agent.EventNotificationClick, Notification: &n}
	if _, err := s.agent.Dispatch(c.Request().Context(), ev); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) remember(n notify.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayed[n.ID] = n
	s.order = append(s.order, n.ID)
	for len(s.order) > displayedLimit {
		delete(s.displayed, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Server) forget(id uuid.UUID) (notify.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.displayed[id]
	if ok {
		delete(s.displayed, id)
	}
	return n, ok
}

// rateLimiter provides per-client rate limiting for the push endpoint.
type rateLimiter struct {
	mu     sync.Mutex
	limits map[string]*rate.Limiter
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{limits: make(map[string]*rate.Limiter)}
}

func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, ok := rl.limits[key]; ok {
		return limiter
	}
	// 10 requests per second, with burst of 20
	limiter := rate.NewLimiter(rate.Every(time.Second/10), 20)
	rl.limits[key] = limiter
	return limiter
}

// Allow checks if a request is allowed for the given key.
func (rl *rateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}
