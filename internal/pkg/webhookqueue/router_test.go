package webhookqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacrosselab/laxhook/app/models"
)

func TestRouterDispatchesByEventType(t *testing.T) {
	router := NewRouter()

	var got string
	router.Register(func(ctx context.Context, item *models.WebhookQueueItem) error {
		got = item.EventType
		return nil
	}, "subscription.created", "subscription.activated")

	assert.True(t, router.Handles("subscription.created"))
	assert.True(t, router.Handles("subscription.activated"))
	assert.False(t, router.Handles("subscription.canceled"))

	err := router.Dispatch(context.Background(), &models.WebhookQueueItem{EventType: "subscription.activated"})
	require.NoError(t, err)
	assert.Equal(t, "subscription.activated", got)
}

func TestRouterUnknownEventTypeIsNoOp(t *testing.T) {
	router := NewRouter()

	called := false
	router.Register(func(ctx context.Context, item *models.WebhookQueueItem) error {
		called = true
		return nil
	}, "subscription.created")

	// Unknown event types succeed without running any handler, so valid but
	// unhandled categories never turn into poison pills.
	err := router.Dispatch(context.Background(), &models.WebhookQueueItem{EventType: "member.signup_completed"})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRouterPropagatesHandlerError(t *testing.T) {
	router := NewRouter()

	handlerErr := errors.New("downstream unavailable")
	router.Register(func(ctx context.Context, item *models.WebhookQueueItem) error {
		return handlerErr
	}, "subscription.created")

	err := router.Dispatch(context.Background(), &models.WebhookQueueItem{EventType: "subscription.created"})
	assert.ErrorIs(t, err, handlerErr)
}
