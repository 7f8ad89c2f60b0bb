package webhookqueue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/lacrosselab/laxhook/app/models"
)

// Processor is a single polling loop. It claims at most one item per tick,
// dispatches it through the router and reports the outcome back to the
// store. Any number of processors may run concurrently, in the same process
// or across processes; correctness comes entirely from the store's atomic
// claim, not from coordination between loops.
type Processor struct {
	id       int
	store    Store
	router   *Router
	interval time.Duration

	// midCycle prevents two overlapping cycles within this one loop when a
	// handler outlasts the poll interval. Cross-loop exclusion is the
	// store's job.
	midCycle atomic.Bool
}

// NewProcessor creates a processor loop with an injected store and router.
func NewProcessor(id int, store Store, router *Router, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Processor{
		id:       id,
		store:    store,
		router:   router,
		interval: interval,
	}
}

// Run polls until the context is canceled. An in-flight item is finished
// before returning; it is not released early (lease recovery covers crashes).
func (p *Processor) Run(ctx context.Context) {
	log.Infof("[WebhookQueue] Processor %d started (interval %s)", p.id, p.interval)

	// Process immediately, then on interval.
	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("[WebhookQueue] Processor %d stopping", p.id)
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Processor) tick(ctx context.Context) {
	if !p.midCycle.CompareAndSwap(false, true) {
		return
	}
	defer p.midCycle.Store(false)

	if err := p.RunOnce(ctx); err != nil {
		log.Errorf("[WebhookQueue] Processor %d cycle error: %v", p.id, err)
	}
}

// RunOnce performs a single claim-and-process cycle. It returns an error
// only for store-level failures; handler failures are funneled into the
// retry path and never crash the loop.
func (p *Processor) RunOnce(ctx context.Context) error {
	item, err := p.store.ClaimNext(ctx)
	if err != nil {
		return err
	}
	if item == nil {
		return nil
	}

	log.Infof("[WebhookQueue] Processor %d processing webhook %s (attempt %d)", p.id, item.WebhookID, item.Attempts)

	start := time.Now()
	handlerErr := p.router.Dispatch(ctx, item)
	elapsed := time.Since(start)

	if handlerErr == nil {
		if err := p.store.Complete(ctx, item.ID); err != nil {
			return err
		}
		p.logAttempt(ctx, item, models.ProcessingOutcomeCompleted, "", elapsed)
		log.Infof("[WebhookQueue] Webhook %s completed in %s", item.WebhookID, elapsed.Truncate(time.Millisecond))
		return nil
	}

	log.Errorf("[WebhookQueue] Webhook %s failed: %v", item.WebhookID, handlerErr)
	status, err := p.store.Retry(ctx, item.ID, handlerErr)
	if err != nil {
		return err
	}

	outcome := models.ProcessingOutcomeRetried
	if status == models.WebhookStatusDeadLetter {
		outcome = models.ProcessingOutcomeDeadLetter
		log.Errorf("[WebhookQueue] Webhook %s dead-lettered after %d attempts", item.WebhookID, item.Attempts+1)
	}
	p.logAttempt(ctx, item, outcome, handlerErr.Error(), elapsed)
	return nil
}

func (p *Processor) logAttempt(ctx context.Context, item *models.WebhookQueueItem, outcome, errMsg string, elapsed time.Duration) {
	entry := &models.WebhookProcessingLog{
		QueueID:    item.ID,
		WebhookID:  item.WebhookID,
		EventType:  item.EventType,
		Attempt:    item.Attempts + 1,
		Outcome:    outcome,
		Error:      errMsg,
		DurationMs: elapsed.Milliseconds(),
	}
	if err := p.store.LogAttempt(ctx, entry); err != nil {
		// Audit only; never fail the item over it.
		log.Errorf("[WebhookQueue] Failed to log attempt for webhook %s: %v", item.WebhookID, err)
	}
}
