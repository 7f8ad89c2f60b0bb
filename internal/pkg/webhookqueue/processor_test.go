package webhookqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacrosselab/laxhook/app/models"
)

func TestRunOnceCompletesSuccessfulItem(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	router := NewRouter()

	processed := 0
	router.Register(func(ctx context.Context, item *models.WebhookQueueItem) error {
		processed++
		return nil
	}, "subscription.created")

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	p := NewProcessor(1, store, router, DefaultPollInterval)
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, 1, processed)

	stored, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusCompleted, stored.Status)

	var logs []models.WebhookProcessingLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ProcessingOutcomeCompleted, logs[0].Outcome)
	assert.Equal(t, 1, logs[0].Attempt)
}

func TestRunOnceRetriesFailedItem(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	router := NewRouter()

	router.Register(func(ctx context.Context, item *models.WebhookQueueItem) error {
		return errors.New("provider lookup failed")
	}, "subscription.created")

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	p := NewProcessor(1, store, router, DefaultPollInterval)
	require.NoError(t, p.RunOnce(context.Background()))

	stored, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "provider lookup failed", stored.LastError)
	require.NotNil(t, stored.NextRetryAt)
	assert.True(t, stored.NextRetryAt.After(time.Now()))

	var logs []models.WebhookProcessingLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ProcessingOutcomeRetried, logs[0].Outcome)
}

func TestRunOnceDeadLettersExhaustedItem(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	router := NewRouter()

	router.Register(func(ctx context.Context, item *models.WebhookQueueItem) error {
		return errors.New("permanently broken")
	}, "subscription.created")

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")
	require.NoError(t, db.Model(&models.WebhookQueueItem{}).Where("id = ?", id).
		Update("attempts", models.DefaultMaxAttempts-1).Error)

	p := NewProcessor(1, store, router, DefaultPollInterval)
	require.NoError(t, p.RunOnce(context.Background()))

	stored, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusDeadLetter, stored.Status)

	var logs []models.WebhookProcessingLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ProcessingOutcomeDeadLetter, logs[0].Outcome)
}

func TestRunOnceTreatsUnknownEventAsSuccess(t *testing.T) {
	store := NewStore(newTestDB(t))
	router := NewRouter()

	id := enqueueTestItem(t, store, "evt-1", "member.signup_completed")

	p := NewProcessor(1, store, router, DefaultPollInterval)
	require.NoError(t, p.RunOnce(context.Background()))

	stored, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusCompleted, stored.Status)
}

func TestRunOnceWithEmptyQueue(t *testing.T) {
	store := NewStore(newTestDB(t))
	p := NewProcessor(1, store, NewRouter(), DefaultPollInterval)

	require.NoError(t, p.RunOnce(context.Background()))
}

func TestManagerStartStop(t *testing.T) {
	store := NewStore(newTestDB(t))
	m := NewManager(store, NewRouter(), Options{
		Workers:       2,
		PollInterval:  10 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})

	m.Start()
	assert.True(t, m.IsRunning())

	// Idempotent start.
	m.Start()
	assert.True(t, m.IsRunning())

	time.Sleep(30 * time.Millisecond)

	m.Stop()
	assert.False(t, m.IsRunning())

	// Idempotent stop.
	m.Stop()
	assert.False(t, m.IsRunning())
}
