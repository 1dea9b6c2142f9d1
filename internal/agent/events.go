package agent

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/medicare-hms/offline-agent/internal/notify"
)

// EventKind tags the event variants the agent dispatches on.
type EventKind int

const (
	EventInstall EventKind = iota
	EventActivate
	EventFetch
	EventPush
	EventNotificationClick
)

// Event is one unit of work for the dispatcher. Fields beyond Kind are set
// per variant: Request for Fetch, Payload for Push, Notification for
// NotificationClick.
type Event struct {
	Kind         EventKind
	Request      *http.Request
	Payload      []byte
	Notification *notify.Notification
}

// Result carries the variant-specific outcome of a dispatched event.
type Result struct {
	Fetch        *FetchResult
	Notification *notify.Notification
}

// Dispatch routes an event to its handler. Each handler runs to completion
// before Dispatch returns; background effects in a fetch result are the only
// work left for the caller to schedule.
func (a *Agent) Dispatch(ctx context.Context, ev Event) (Result, error) {
	switch ev.Kind {
	case EventInstall:
		return Result{}, a.Install(ctx)
	case EventActivate:
		return Result{}, a.Activate(ctx)
	case EventFetch:
		res, err := a.HandleFetch(ctx, ev.Request)
		return Result{Fetch: res}, err
	case EventPush:
		n, err := a.HandlePush(ctx, ev.Payload)
		return Result{Notification: &n}, err
	case EventNotificationClick:
		if ev.Notification == nil {
			return Result{}, errors.New("notification click event without descriptor")
		}
		return Result{}, a.HandleClick(ctx, *ev.Notification)
	}
	return Result{}, errors.Errorf("unknown event kind %d", ev.Kind)
}
