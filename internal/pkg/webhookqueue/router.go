package webhookqueue

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/lacrosselab/laxhook/app/models"
)

// HandlerFunc processes one claimed queue item. A non-nil return schedules a
// retry; nil marks the item completed.
type HandlerFunc func(ctx context.Context, item *models.WebhookQueueItem) error

// Router dispatches queue items to handlers registered per event type.
// Unknown event types are a successful no-op by policy: valid-but-unhandled
// event categories from the provider must not become poison pills that burn
// through the retry budget.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter creates an empty handler registry.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to one or more event types. Later registrations
// replace earlier ones.
func (r *Router) Register(handler HandlerFunc, eventTypes ...string) {
	for _, et := range eventTypes {
		r.handlers[et] = handler
	}
}

// Handles reports whether an event type has a registered handler.
func (r *Router) Handles(eventType string) bool {
	_, ok := r.handlers[eventType]
	return ok
}

// Dispatch routes the item to its handler by exact event-type match.
func (r *Router) Dispatch(ctx context.Context, item *models.WebhookQueueItem) error {
	handler, ok := r.handlers[item.EventType]
	if !ok {
		log.Infof("[WebhookQueue] Unhandled event type %s (webhook %s), completing as no-op", item.EventType, item.WebhookID)
		return nil
	}
	return handler(ctx, item)
}
