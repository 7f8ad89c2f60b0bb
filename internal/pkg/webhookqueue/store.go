package webhookqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lacrosselab/laxhook/app/models"
)

// Store is the durable queue table plus the atomic operations the processor
// loops coordinate through. Implementations must make ClaimNext safe under
// any number of concurrent callers; everything else follows from that.
type Store interface {
	// Enqueue inserts a new pending item unless webhookID is already known.
	// It returns the queue id and whether a new row was created. Store
	// failures are propagated so the inbound endpoint can ask the provider
	// to redeliver.
	Enqueue(ctx context.Context, webhookID, source, eventType string, payload []byte) (uint, bool, error)

	// ClaimNext atomically takes one eligible pending item, marks it
	// processing and returns it. It returns (nil, nil) when nothing is
	// eligible.
	ClaimNext(ctx context.Context) (*models.WebhookQueueItem, error)

	// Complete marks a processing item as completed. Terminal. Attempt
	// timing lives in the processing log, not on the queue row.
	Complete(ctx context.Context, queueID uint) error

	// Retry records a failed attempt. The item goes back to pending with an
	// exponential-backoff next_retry_at, or to dead_letter once attempts
	// are exhausted. The resulting status is returned.
	Retry(ctx context.Context, queueID uint, processErr error) (string, error)

	// ResetExpiredLeases recovers items stuck in processing longer than the
	// lease. The lost attempt counts toward max_attempts, so repeatedly
	// crashing items dead-letter instead of looping forever.
	ResetExpiredLeases(ctx context.Context, lease time.Duration) (int64, error)

	// RequeueDeadLetter is the explicit operator action that makes a
	// dead-lettered item live again, with a fresh attempt budget.
	RequeueDeadLetter(ctx context.Context, queueID uint) error

	// StatusCounts returns the status histogram over the most recent items.
	StatusCounts(ctx context.Context) (map[string]int64, error)

	// FindStuck lists items processing for longer than the given age.
	FindStuck(ctx context.Context, olderThan time.Duration) ([]models.WebhookQueueItem, error)

	// LogAttempt appends an audit row for one processing attempt.
	LogAttempt(ctx context.Context, entry *models.WebhookProcessingLog) error

	// GetByID fetches a single item, mainly for diagnostics and tests.
	GetByID(ctx context.Context, queueID uint) (*models.WebhookQueueItem, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a queue store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Enqueue(ctx context.Context, webhookID, source, eventType string, payload []byte) (uint, bool, error) {
	if webhookID == "" {
		return 0, false, fmt.Errorf("webhook_id is required")
	}
	if source == "" {
		source = models.WebhookSourceMemberpress
	}

	item := &models.WebhookQueueItem{
		WebhookID:   webhookID,
		Source:      source,
		EventType:   eventType,
		Payload:     datatypes.JSON(payload),
		Status:      models.WebhookStatusPending,
		Attempts:    0,
		MaxAttempts: models.DefaultMaxAttempts,
	}

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "webhook_id"}},
		DoNothing: true,
	}).Create(item)
	if tx.Error != nil {
		return 0, false, fmt.Errorf("failed to enqueue webhook %s: %w", webhookID, tx.Error)
	}

	created := tx.RowsAffected > 0

	// Re-read so redeliveries return the id of the original row.
	var stored models.WebhookQueueItem
	if err := s.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		First(&stored).Error; err != nil {
		return 0, false, fmt.Errorf("failed to load enqueued webhook %s: %w", webhookID, err)
	}
	return stored.ID, created, nil
}

func (s *gormStore) ClaimNext(ctx context.Context) (*models.WebhookQueueItem, error) {
	now := time.Now()

	// FIFO candidate scan followed by a conditional update. The update's
	// WHERE clause re-checks the pending state, so losing a race against a
	// concurrent claimer just moves us to the next candidate. Never a plain
	// read-then-write.
	var candidates []uint
	err := s.db.WithContext(ctx).
		Model(&models.WebhookQueueItem{}).
		Where("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", models.WebhookStatusPending, now).
		Order("created_at ASC").
		Limit(claimCandidateBatch).
		Pluck("id", &candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan claim candidates: %w", err)
	}

	for _, id := range candidates {
		res := s.db.WithContext(ctx).
			Model(&models.WebhookQueueItem{}).
			Where("id = ? AND status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
				id, models.WebhookStatusPending, now).
			Updates(map[string]interface{}{
				"status":     models.WebhookStatusProcessing,
				"started_at": now,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to claim item %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			// Another worker won this row.
			continue
		}

		var item models.WebhookQueueItem
		if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
			return nil, fmt.Errorf("failed to load claimed item %d: %w", id, err)
		}
		return &item, nil
	}

	return nil, nil
}

func (s *gormStore) Complete(ctx context.Context, queueID uint) error {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&models.WebhookQueueItem{}).
		Where("id = ? AND status = ?", queueID, models.WebhookStatusProcessing).
		Updates(map[string]interface{}{
			"status":       models.WebhookStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete item %d: %w", queueID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotClaimable
	}
	return nil
}

func (s *gormStore) Retry(ctx context.Context, queueID uint, processErr error) (string, error) {
	errMsg := ""
	if processErr != nil {
		errMsg = processErr.Error()
	}

	var status string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.WebhookQueueItem
		if err := tx.
			Where("id = ? AND status = ?", queueID, models.WebhookStatusProcessing).
			First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// The item was already swept back to pending (lease expiry)
				// or is otherwise not ours anymore; that attempt was
				// counted by whoever moved it.
				return ErrNotClaimable
			}
			return err
		}

		item.Attempts++
		updates := map[string]interface{}{
			"attempts":   item.Attempts,
			"last_error": errMsg,
		}
		if item.Attempts >= item.MaxAttempts {
			status = models.WebhookStatusDeadLetter
			updates["status"] = status
			updates["next_retry_at"] = nil
		} else {
			status = models.WebhookStatusPending
			updates["status"] = status
			updates["next_retry_at"] = time.Now().Add(Backoff(item.Attempts))
			updates["started_at"] = nil
		}
		// Re-check processing in the WHERE clause: if the sweeper reset the
		// row (or another path finished it) between the read above and this
		// write, the update must not flip it back with stale attempt counts.
		res := tx.Model(&models.WebhookQueueItem{}).
			Where("id = ? AND status = ?", queueID, models.WebhookStatusProcessing).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotClaimable
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotClaimable) {
			return "", ErrNotClaimable
		}
		return "", fmt.Errorf("failed to schedule retry for item %d: %w", queueID, err)
	}
	return status, nil
}

func (s *gormStore) ResetExpiredLeases(ctx context.Context, lease time.Duration) (int64, error) {
	cutoff := time.Now().Add(-lease)

	// Items whose lost attempt exhausts the budget go straight to
	// dead_letter; the rest return to pending for another claim.
	dead := s.db.WithContext(ctx).
		Model(&models.WebhookQueueItem{}).
		Where("status = ? AND started_at < ? AND attempts + 1 >= max_attempts",
			models.WebhookStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":        models.WebhookStatusDeadLetter,
			"attempts":      gorm.Expr("attempts + 1"),
			"last_error":    "processing lease expired",
			"next_retry_at": nil,
		})
	if dead.Error != nil {
		return 0, fmt.Errorf("failed to dead-letter expired leases: %w", dead.Error)
	}

	reset := s.db.WithContext(ctx).
		Model(&models.WebhookQueueItem{}).
		Where("status = ? AND started_at < ?", models.WebhookStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":        models.WebhookStatusPending,
			"attempts":      gorm.Expr("attempts + 1"),
			"last_error":    "processing lease expired",
			"next_retry_at": nil,
			"started_at":    nil,
		})
	if reset.Error != nil {
		return dead.RowsAffected, fmt.Errorf("failed to reset expired leases: %w", reset.Error)
	}
	return dead.RowsAffected + reset.RowsAffected, nil
}

func (s *gormStore) RequeueDeadLetter(ctx context.Context, queueID uint) error {
	res := s.db.WithContext(ctx).
		Model(&models.WebhookQueueItem{}).
		Where("id = ? AND status = ?", queueID, models.WebhookStatusDeadLetter).
		Updates(map[string]interface{}{
			"status":        models.WebhookStatusPending,
			"attempts":      0,
			"next_retry_at": nil,
			"started_at":    nil,
			"completed_at":  nil,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to requeue dead-letter item %d: %w", queueID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotClaimable
	}
	return nil
}

func (s *gormStore) StatusCounts(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count FROM (
			SELECT status FROM webhook_queue ORDER BY created_at DESC LIMIT ?
		) recent GROUP BY status`, healthSampleSize).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read status counts: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *gormStore) FindStuck(ctx context.Context, olderThan time.Duration) ([]models.WebhookQueueItem, error) {
	cutoff := time.Now().Add(-olderThan)
	var items []models.WebhookQueueItem
	err := s.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", models.WebhookStatusProcessing, cutoff).
		Order("started_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stuck items: %w", err)
	}
	return items, nil
}

func (s *gormStore) LogAttempt(ctx context.Context, entry *models.WebhookProcessingLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write processing log: %w", err)
	}
	return nil
}

func (s *gormStore) GetByID(ctx context.Context, queueID uint) (*models.WebhookQueueItem, error) {
	var item models.WebhookQueueItem
	if err := s.db.WithContext(ctx).First(&item, queueID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}
