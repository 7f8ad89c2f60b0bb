package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/lacrosselab/laxhook/internal/pkg/cache"
	"github.com/lacrosselab/laxhook/internal/pkg/webhookqueue"
)

const (
	queueHealthCacheKey = "laxhook:queue:health"
	queueHealthCacheTTL = 10 * time.Second
)

// AdminQueueController exposes the queue health snapshot and dead-letter
// recovery actions behind the admin routes.
type AdminQueueController struct {
	store webhookqueue.Store
}

func NewAdminQueueController(store webhookqueue.Store) *AdminQueueController {
	return &AdminQueueController{store: store}
}

type queueHealthSnapshot struct {
	StatusCounts map[string]int64 `json:"status_counts"`
	StuckCount   int              `json:"stuck_count"`
	StuckIDs     []uint           `json:"stuck_ids,omitempty"`
	SampledAt    time.Time        `json:"sampled_at"`
}

// HandleQueueHealth returns a status histogram over the most recent queue
// items plus any items stuck in processing. The snapshot is cached briefly
// so dashboard polling stays off the database.
func (aqc *AdminQueueController) HandleQueueHealth(c *fiber.Ctx) error {
	if cached, err := cache.Get(queueHealthCacheKey); err == nil && cached != "" {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(cached)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := aqc.store.StatusCounts(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "health_query_failed"})
	}
	stuck, err := aqc.store.FindStuck(ctx, webhookqueue.DefaultLeaseDuration)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "health_query_failed"})
	}

	snapshot := queueHealthSnapshot{
		StatusCounts: counts,
		StuckCount:   len(stuck),
		SampledAt:    time.Now().UTC(),
	}
	for _, item := range stuck {
		snapshot.StuckIDs = append(snapshot.StuckIDs, item.ID)
	}

	body, err := json.Marshal(snapshot)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "health_encode_failed"})
	}
	if err := cache.Set(queueHealthCacheKey, string(body), queueHealthCacheTTL); err != nil {
		log.Warnf("[AdminQueue] Failed to cache health snapshot: %v", err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// HandleRequeueDeadLetter resets a dead-lettered item back to pending with a
// fresh attempt budget. This is the only path back to live for dead letters.
func (aqc *AdminQueueController) HandleRequeueDeadLetter(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_queue_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := aqc.store.RequeueDeadLetter(ctx, uint(id)); err != nil {
		if errors.Is(err, webhookqueue.ErrNotClaimable) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_dead_letter"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "requeue_failed"})
	}

	_ = cache.Delete(queueHealthCacheKey)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "id": id})
}
