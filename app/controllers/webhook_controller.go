package controllers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lacrosselab/laxhook/app/models"
	"github.com/lacrosselab/laxhook/internal/pkg/env"
	"github.com/lacrosselab/laxhook/internal/pkg/membership"
	"github.com/lacrosselab/laxhook/internal/pkg/webhookqueue"
)

// WebhookController accepts provider notifications and persists them for
// asynchronous processing. It never runs side effects inline; it only
// enqueues.
type WebhookController struct {
	store webhookqueue.Store
}

func NewWebhookController(store webhookqueue.Store) *WebhookController {
	return &WebhookController{store: store}
}

// HandleMemberpressWebhook verifies the request signature, extracts the
// delivery id and enqueues the raw payload. Store failures return 500 so the
// provider redelivers.
func (wc *WebhookController) HandleMemberpressWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := firstHeaderValue(c, "X-Memberpress-Signature", "X-Webhook-Signature")
	secret := env.GetEnv("MEMBERPRESS_WEBHOOK_SECRET", "")

	// An unset secret disables verification (local development only).
	if secret != "" && !membership.VerifyWebhookSignature(rawBody, signature, secret) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	var envelope struct {
		Event     string `json:"event"`
		WebhookID string `json:"webhook_id"`
	}
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	eventType := strings.TrimSpace(envelope.Event)
	if eventType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_event_type"})
	}

	webhookID := strings.TrimSpace(envelope.WebhookID)
	if webhookID == "" {
		webhookID = firstHeaderValue(c, "X-Webhook-ID", "X-Memberpress-Delivery")
	}
	if webhookID == "" {
		// No provider id means dedup falls back to the payload hash.
		sum := sha256.Sum256(rawBody)
		webhookID = hex.EncodeToString(sum[:])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	id, created, err := wc.store.Enqueue(ctx, webhookID, models.WebhookSourceMemberpress, eventType, rawBody)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true, "id": id})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "id": id})
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
