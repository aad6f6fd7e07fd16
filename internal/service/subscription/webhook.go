package subscription

import (
	"context"
	"errors"

	"gorm.io/datatypes"

	"askhub_backend/internal/model"
	"askhub_backend/internal/repository"
	"askhub_backend/pkg/apperr"
	"askhub_backend/pkg/billing"
)

// Webhook results, as reported to metrics.
const (
	resultApplied   = "applied"
	resultDuplicate = "duplicate"
	resultStale     = "stale"
	resultIgnored   = "ignored"
	resultFailed    = "failed"
)

// HandleWebhook verifies a Stripe delivery and applies it. Any error means the
// delivery should be answered with a non-2xx status so Stripe retries it.
func (m *Manager) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := m.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return apperr.Wrap(apperr.ErrValidation, err, "invalid webhook signature")
		}
		return apperr.Wrap(apperr.ErrValidation, err, "malformed webhook payload")
	}
	return m.ProcessEvent(ctx, event)
}

// ProcessEvent applies a verified event. Each event id is applied at most
// once. Events created before the newest one already applied to a record do
// not change it. Notifications go out only after the change is committed.
func (m *Manager) ProcessEvent(ctx context.Context, event *billing.Event) error {
	log := m.log.With().Str("event_id", event.ID).Str("event_type", event.Type).Logger()

	// Gateway reads happen before the transaction opens.
	var checkoutSub *billing.SubscriptionInfo
	if event.Type == billing.EventCheckoutCompleted && event.SubscriptionID != "" {
		info, err := m.gateway.GetSubscription(ctx, event.SubscriptionID)
		if err != nil {
			m.metrics.WebhookEvents.WithLabelValues(event.Type, resultFailed).Inc()
			log.Error().Err(err).Msg("could not load checkout subscription")
			return apperr.Gateway(err, "load subscription")
		}
		checkoutSub = info
	}

	var (
		result = resultIgnored
		notify func(ctx context.Context) error
	)

	err := m.tx.InTx(ctx, func(ctx context.Context) error {
		seen, err := m.events.Exists(ctx, event.ID)
		if err != nil {
			return apperr.Storage(err, "check billing event")
		}
		if seen {
			result = resultDuplicate
			return nil
		}

		switch event.Type {
		case billing.EventCheckoutCompleted:
			result, notify, err = m.applyCheckoutCompleted(ctx, event, checkoutSub)
		case billing.EventInvoicePaymentFail:
			result, notify, err = m.applyPaymentFailed(ctx, event)
		case billing.EventSubscriptionUpdated:
			result, err = m.applySubscriptionUpdated(ctx, event)
		case billing.EventSubscriptionDeleted:
			result, err = m.applySubscriptionDeleted(ctx, event)
		default:
			result = resultIgnored
		}
		if err != nil {
			return err
		}

		rec := &model.BillingEvent{
			EventID:     event.ID,
			Type:        event.Type,
			Payload:     datatypes.JSON(event.Raw),
			ProcessedAt: m.now(),
		}
		if err := m.events.Record(ctx, rec); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// A concurrent delivery of the same event won.
				return errDuplicateEvent
			}
			return apperr.Storage(err, "record billing event")
		}
		return nil
	})

	if errors.Is(err, errDuplicateEvent) {
		result, notify, err = resultDuplicate, nil, nil
	}
	if err != nil {
		m.metrics.WebhookEvents.WithLabelValues(event.Type, resultFailed).Inc()
		log.Error().Err(err).Msg("webhook event failed")
		return err
	}

	m.metrics.WebhookEvents.WithLabelValues(event.Type, result).Inc()
	log.Info().Str("result", result).Msg("webhook event handled")

	if notify != nil {
		if err := notify(ctx); err != nil {
			log.Warn().Err(err).Msg("webhook notification failed")
		}
	}
	return nil
}

var errDuplicateEvent = errors.New("billing event already recorded")

// findForEvent locates the record an event refers to, first by customer and
// then by subscription id. Events for customers this service never created
// resolve to nil.
func (m *Manager) findForEvent(ctx context.Context, event *billing.Event) (*model.Subscription, error) {
	sub, err := m.store.FindByCustomerID(ctx, event.CustomerID)
	if err != nil {
		return nil, apperr.Storage(err, "load subscription")
	}
	if sub != nil {
		return sub, nil
	}
	sub, err = m.store.FindBySubscriptionID(ctx, event.SubscriptionID)
	if err != nil {
		return nil, apperr.Storage(err, "load subscription")
	}
	return sub, nil
}

func (m *Manager) notifyUser(userID uint, send func(ctx context.Context, u *model.User) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		u, err := m.users.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.NotFound("user")
		}
		return send(ctx, u)
	}
}

func (m *Manager) applyCheckoutCompleted(ctx context.Context, event *billing.Event, info *billing.SubscriptionInfo) (string, func(context.Context) error, error) {
	if info == nil {
		m.log.Warn().Str("event_id", event.ID).Msg("checkout completed without a subscription")
		return resultIgnored, nil, nil
	}
	lookup := *event
	if lookup.CustomerID == "" {
		lookup.CustomerID = info.CustomerID
	}

	sub, err := m.findForEvent(ctx, &lookup)
	if err != nil {
		return "", nil, err
	}
	if sub == nil {
		m.log.Warn().Str("customer_id", lookup.CustomerID).Msg("checkout for unknown customer")
		return resultIgnored, nil, nil
	}
	if sub.IsStale(event.Created) {
		return resultStale, nil, nil
	}

	sub.StripeCustomerID = lookup.CustomerID
	sub.ApplyPaid(info.ID, info.PriceID, info.CurrentPeriodEnd)
	sub.MarkEvent(event.Created)
	if err := m.save(ctx, sub); err != nil {
		return "", nil, err
	}

	planName := m.catalog.Free().Name
	if plan, _, ok := m.catalog.FindByPriceID(info.PriceID); ok {
		planName = plan.Name
	}
	periodEnd := info.CurrentPeriodEnd

	notify := m.notifyUser(sub.UserID, func(ctx context.Context, u *model.User) error {
		return m.notifier.SendSubscriptionCreated(ctx, recipient(u), planName, &periodEnd)
	})
	return resultApplied, notify, nil
}

func (m *Manager) applyPaymentFailed(ctx context.Context, event *billing.Event) (string, func(context.Context) error, error) {
	sub, err := m.store.FindBySubscriptionID(ctx, event.SubscriptionID)
	if err != nil {
		return "", nil, apperr.Storage(err, "load subscription")
	}
	if sub == nil {
		// The local id is gone after a cancel at period end.
		if sub, err = m.findForEvent(ctx, event); err != nil {
			return "", nil, err
		}
	}
	if sub == nil {
		return resultIgnored, nil, nil
	}

	notify := m.notifyUser(sub.UserID, func(ctx context.Context, u *model.User) error {
		return m.notifier.SendPaymentFailed(ctx, recipient(u))
	})
	return resultApplied, notify, nil
}

func (m *Manager) applySubscriptionUpdated(ctx context.Context, event *billing.Event) (string, error) {
	sub, err := m.findForEvent(ctx, event)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return resultIgnored, nil
	}
	if sub.IsStale(event.Created) {
		return resultStale, nil
	}

	subscriptionID := event.SubscriptionID
	if event.CancelAtPeriodEnd {
		// Keep a scheduled cancellation from reappearing as an active subscription.
		subscriptionID = ""
	}
	sub.ApplyPaid(subscriptionID, event.PriceID, event.CurrentPeriodEnd)
	sub.MarkEvent(event.Created)
	if err := m.save(ctx, sub); err != nil {
		return "", err
	}
	return resultApplied, nil
}

func (m *Manager) applySubscriptionDeleted(ctx context.Context, event *billing.Event) (string, error) {
	sub, err := m.findForEvent(ctx, event)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return resultIgnored, nil
	}
	if sub.IsStale(event.Created) {
		return resultStale, nil
	}

	sub.ClearPaid()
	sub.MarkEvent(event.Created)
	if err := m.save(ctx, sub); err != nil {
		return "", err
	}
	return resultApplied, nil
}
