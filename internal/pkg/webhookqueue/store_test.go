package webhookqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lacrosselab/laxhook/app/models"
)

var testDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:webhookqueue_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.WebhookQueueItem{},
		&models.WebhookProcessingLog{},
	))

	return db
}

func enqueueTestItem(t *testing.T, store Store, webhookID, eventType string) uint {
	t.Helper()

	id, created, err := store.Enqueue(context.Background(), webhookID, models.WebhookSourceMemberpress, eventType, []byte(`{"membership_id":5}`))
	require.NoError(t, err)
	require.True(t, created)
	return id
}

func TestEnqueueIsIdempotent(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	first, created, err := store.Enqueue(ctx, "evt-1", models.WebhookSourceMemberpress, "subscription.created", []byte(`{"membership_id":5}`))
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := store.Enqueue(ctx, "evt-1", models.WebhookSourceMemberpress, "subscription.created", []byte(`{"membership_id":5}`))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)

	var count int64
	require.NoError(t, newCountQuery(store).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func newCountQuery(store Store) *gorm.DB {
	return store.(*gormStore).db.Model(&models.WebhookQueueItem{})
}

func TestEnqueueRequiresWebhookID(t *testing.T) {
	store := NewStore(newTestDB(t))

	_, _, err := store.Enqueue(context.Background(), "", models.WebhookSourceMemberpress, "subscription.created", nil)
	require.Error(t, err)
}

func TestClaimNextIsExclusive(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	item, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, models.WebhookStatusProcessing, item.Status)
	assert.NotNil(t, item.StartedAt)

	// The same item must not be claimable a second time.
	again, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestClaimNextHasSingleWinnerUnderConcurrency(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	// One connection keeps sqlite from throwing busy errors; the goroutines
	// still race through the full candidate-scan-plus-conditional-update path.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	const workers = 8
	claims := make(chan uint, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, err := store.ClaimNext(ctx)
			if err != nil {
				t.Errorf("concurrent claim failed: %v", err)
				return
			}
			if item != nil {
				claims <- item.ID
			}
		}()
	}
	wg.Wait()
	close(claims)

	var winners []uint
	for claimed := range claims {
		winners = append(winners, claimed)
	}
	require.Len(t, winners, 1, "exactly one worker may win the item")
	assert.Equal(t, id, winners[0])

	stored, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusProcessing, stored.Status)
}

func TestClaimNextIsFIFO(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	first := enqueueTestItem(t, store, "evt-1", "subscription.created")
	second := enqueueTestItem(t, store, "evt-2", "subscription.created")

	// Force distinct created_at timestamps; sqlite granularity is coarse.
	require.NoError(t, db.Model(&models.WebhookQueueItem{}).Where("id = ?", first).
		Update("created_at", time.Now().Add(-time.Minute)).Error)

	item, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, first, item.ID)

	item, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, second, item.ID)
}

func TestClaimNextSkipsFutureRetries(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")
	require.NoError(t, db.Model(&models.WebhookQueueItem{}).Where("id = ?", id).
		Update("next_retry_at", time.Now().Add(time.Hour)).Error)

	item, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, item)

	// Once the delay has elapsed, the item becomes claimable again.
	require.NoError(t, db.Model(&models.WebhookQueueItem{}).Where("id = ?", id).
		Update("next_retry_at", time.Now().Add(-time.Second)).Error)

	item, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, id, item.ID)
}

func TestCompleteIsTerminal(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	item, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	require.NoError(t, store.Complete(ctx, id))

	stored, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.IsTerminal())

	// Completed items are never reclaimed.
	again, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)

	// Completing twice means the row is no longer in processing.
	err = store.Complete(ctx, id)
	assert.ErrorIs(t, err, ErrNotClaimable)
}

func TestRetrySchedulesBackoffThenDeadLetters(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	for attempt := 1; attempt <= models.DefaultMaxAttempts; attempt++ {
		// Make the item immediately claimable regardless of prior backoff.
		require.NoError(t, db.Model(&models.WebhookQueueItem{}).Where("id = ?", id).
			Update("next_retry_at", nil).Error)

		item, err := store.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, item, "attempt %d should be claimable", attempt)

		status, err := store.Retry(ctx, id, errors.New("handler exploded"))
		require.NoError(t, err)

		stored, err := store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, attempt, stored.Attempts)
		assert.Equal(t, "handler exploded", stored.LastError)

		if attempt < models.DefaultMaxAttempts {
			assert.Equal(t, models.WebhookStatusPending, status)
			require.NotNil(t, stored.NextRetryAt)
			assert.True(t, stored.NextRetryAt.After(time.Now()), "retry delay must be in the future")
		} else {
			assert.Equal(t, models.WebhookStatusDeadLetter, status)
			assert.True(t, stored.IsTerminal())
		}
	}

	// Dead-lettered items require an explicit operator requeue.
	item, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestRetryOnSweptItemReturnsNotClaimable(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	item, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	// Simulate the sweeper reclaiming the row mid-flight.
	require.NoError(t, db.Model(&models.WebhookQueueItem{}).Where("id = ?", id).
		Update("status", models.WebhookStatusPending).Error)

	_, err = store.Retry(ctx, id, errors.New("boom"))
	assert.ErrorIs(t, err, ErrNotClaimable)
}

func TestRetryNeverRevivesTerminalItem(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	item, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	require.NoError(t, store.Complete(ctx, id))

	// A stale worker reporting a failure after the item finished elsewhere
	// must not move it back to pending or touch its attempt count.
	_, err = store.Retry(ctx, id, errors.New("stale failure"))
	assert.ErrorIs(t, err, ErrNotClaimable)

	stored, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusCompleted, stored.Status)
	assert.Zero(t, stored.Attempts)
	assert.Empty(t, stored.LastError)
}

func TestResetExpiredLeases(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	item, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	// A fresh lease is not recovered.
	recovered, err := store.ResetExpiredLeases(ctx, DefaultLeaseDuration)
	require.NoError(t, err)
	assert.Zero(t, recovered)

	// Backdate the claim beyond the lease window.
	require.NoError(t, db.Model(&models.WebhookQueueItem{}).Where("id = ?", id).
		Update("started_at", time.Now().Add(-10*time.Minute)).Error)

	recovered, err = store.ResetExpiredLeases(ctx, DefaultLeaseDuration)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	stored, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts, "the lost attempt counts toward the budget")
	assert.Nil(t, stored.StartedAt)
}

func TestResetExpiredLeasesDeadLettersExhaustedItems(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	item, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	require.NoError(t, db.Model(&models.WebhookQueueItem{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"started_at": time.Now().Add(-10 * time.Minute),
			"attempts":   models.DefaultMaxAttempts - 1,
		}).Error)

	recovered, err := store.ResetExpiredLeases(ctx, DefaultLeaseDuration)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	stored, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusDeadLetter, stored.Status)
	assert.Equal(t, models.DefaultMaxAttempts, stored.Attempts)
}

func TestRequeueDeadLetter(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	// Only dead-lettered items can be requeued.
	err := store.RequeueDeadLetter(ctx, id)
	assert.ErrorIs(t, err, ErrNotClaimable)

	require.NoError(t, db.Model(&models.WebhookQueueItem{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   models.WebhookStatusDeadLetter,
			"attempts": models.DefaultMaxAttempts,
		}).Error)

	require.NoError(t, store.RequeueDeadLetter(ctx, id))

	stored, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusPending, stored.Status)
	assert.Zero(t, stored.Attempts)
	assert.Nil(t, stored.NextRetryAt)

	item, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, id, item.ID)
}

func TestStatusCounts(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	enqueueTestItem(t, store, "evt-1", "subscription.created")
	enqueueTestItem(t, store, "evt-2", "subscription.created")
	done := enqueueTestItem(t, store, "evt-3", "subscription.created")

	require.NoError(t, db.Model(&models.WebhookQueueItem{}).Where("id = ?", done).
		Update("status", models.WebhookStatusCompleted).Error)

	counts, err := store.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.WebhookStatusPending])
	assert.Equal(t, int64(1), counts[models.WebhookStatusCompleted])
}

func TestFindStuck(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id := enqueueTestItem(t, store, "evt-1", "subscription.created")

	item, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	stuck, err := store.FindStuck(ctx, DefaultLeaseDuration)
	require.NoError(t, err)
	assert.Empty(t, stuck)

	require.NoError(t, db.Model(&models.WebhookQueueItem{}).Where("id = ?", id).
		Update("started_at", time.Now().Add(-10*time.Minute)).Error)

	stuck, err = store.FindStuck(ctx, DefaultLeaseDuration)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, id, stuck[0].ID)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	prev := time.Duration(0)
	for attempts := 0; attempts < 10; attempts++ {
		d := Backoff(attempts)
		if d < prev {
			t.Fatalf("Backoff(%d) = %s, smaller than previous %s", attempts, d, prev)
		}
		if d > time.Hour {
			t.Fatalf("Backoff(%d) = %s, exceeds cap", attempts, d)
		}
		prev = d
	}

	if Backoff(0) != 30*time.Second {
		t.Fatalf("Backoff(0) = %s, want 30s", Backoff(0))
	}
	if Backoff(1) != time.Minute {
		t.Fatalf("Backoff(1) = %s, want 1m", Backoff(1))
	}
	if Backoff(20) != time.Hour {
		t.Fatalf("Backoff(20) = %s, want 1h cap", Backoff(20))
	}
}
