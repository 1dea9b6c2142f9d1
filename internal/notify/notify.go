// Package notify builds and dispatches the notifications raised by push
// messages from the hospital application. Descriptors are ephemeral: built
// per push event, displayed, and discarded.
package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/google/uuid"
)

const (
	// Title is fixed for every notification the agent displays.
	Title = "MediCare Hospital"

	// DefaultBody is used when a push message carries no readable payload.
	DefaultBody = "You have a new update from MediCare Hospital."

	IconPath  = "/static/icons/icon-192.png"
	BadgePath = "/static/icons/icon-192.png"
)

// Vibration is the fixed vibration pattern in milliseconds (on/off/on).
var Vibration = []int{100, 50, 100}

// Data is the payload carried by a notification into the click handler.
type Data struct {
	URL string `json:"url"`
}

// Notification is a display descriptor for a single push message.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Icon      string    `json:"icon"`
	Badge     string    `json:"badge"`
	Vibration []int     `json:"vibration"`
	Data      Data      `json:"data"`
}

// payload is the optional JSON envelope a push message may carry. Plain text
// payloads are used as the body directly.
type payload struct {
	Body string `json:"body"`
	URL  string `json:"url"`
}

// FromPayload builds a notification descriptor from a raw push payload. An
// empty or unreadable payload falls back to DefaultBody. HTML fragments are
// flattened to text so markup from the hospital app never reaches the
// notification body verbatim.
func FromPayload(raw []byte) Notification {
	body := DefaultBody
	targetURL := "/"

	text := strings.TrimSpace(string(raw))
	if text != "" {
		var p payload
		if strings.HasPrefix(text, "{") && json.Unmarshal(raw, &p) == nil && p.Body != "" {
			body = flatten(p.Body)
			if p.URL != "" {
				targetURL = p.URL
			}
		} else {
			body = flatten(text)
		}
	}

	return Notification{
		ID:        uuid.New(),
		Title:     Title,
		Body:      body,
		Icon:      IconPath,
		Badge:     BadgePath,
		Vibration: Vibration,
		Data:      Data{URL: targetURL},
	}
}

// flatten strips HTML markup from a payload body. Plain text passes through
// unchanged.
func flatten(s string) string {
	if !strings.Contains(s, "<") || !strings.Contains(s, ">") {
		return s
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(md)
}

// Displayer shows notifications to the user. Display must not return until
// the notification has been handed off; the push handler stays open until
// then.
type Displayer interface {
	Display(ctx context.Context, n Notification) error
	Close(ctx context.Context, id uuid.UUID) error
}

// Windows opens or focuses a client window at the given URL. Used by the
// notification click handler.
type Windows interface {
	OpenOrFocus(ctx context.Context, url string) error
}
