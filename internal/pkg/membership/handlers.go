package membership

import (
	"context"
	"fmt"

	"github.com/lacrosselab/laxhook/app/models"
	"github.com/lacrosselab/laxhook/internal/pkg/webhookqueue"
)

// RegisterHandlers binds the membership side-effect handlers to their event
// families on the queue router. Event types without a binding stay no-ops
// by router policy.
func RegisterHandlers(router *webhookqueue.Router, svc *Service) {
	router.Register(subscriptionActivationHandler(svc),
		EventSubscriptionCreated, EventSubscriptionActivated, EventSubscriptionUpgraded)
	router.Register(subscriptionTerminationHandler(svc),
		EventSubscriptionCanceled, EventSubscriptionExpired)
	router.Register(transactionHandler(svc),
		EventTransactionCompleted, EventTransactionRefunded)
}

func subscriptionActivationHandler(svc *Service) webhookqueue.HandlerFunc {
	return func(ctx context.Context, item *models.WebhookQueueItem) error {
		evt, err := decodeSubscriptionEvent(item)
		if err != nil {
			return err
		}
		return svc.HandleSubscriptionActivation(ctx, evt)
	}
}

func subscriptionTerminationHandler(svc *Service) webhookqueue.HandlerFunc {
	return func(ctx context.Context, item *models.WebhookQueueItem) error {
		evt, err := decodeSubscriptionEvent(item)
		if err != nil {
			return err
		}
		return svc.HandleSubscriptionTermination(ctx, evt)
	}
}

func transactionHandler(svc *Service) webhookqueue.HandlerFunc {
	return func(ctx context.Context, item *models.WebhookQueueItem) error {
		evt, err := ParseEvent(item.EventType, item.Payload)
		if err != nil {
			return err
		}
		txEvt, ok := evt.(*TransactionEvent)
		if !ok {
			return fmt.Errorf("unexpected payload variant for %s", item.EventType)
		}
		return svc.HandleTransaction(ctx, txEvt)
	}
}

func decodeSubscriptionEvent(item *models.WebhookQueueItem) (*SubscriptionEvent, error) {
	evt, err := ParseEvent(item.EventType, item.Payload)
	if err != nil {
		return nil, err
	}
	subEvt, ok := evt.(*SubscriptionEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload variant for %s", item.EventType)
	}
	return subEvt, nil
}
