package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"askhub_backend/internal/model"
	"askhub_backend/internal/repository"
	"askhub_backend/pkg/apperr"
	"askhub_backend/pkg/billing"
)

func checkoutEvent(id string, created time.Time) *billing.Event {
	return &billing.Event{
		ID:             id,
		Type:           billing.EventCheckoutCompleted,
		Created:        created,
		CustomerID:     "cus_ada",
		SubscriptionID: "sub_1",
		Raw:            []byte(`{"id":"` + id + `"}`),
	}
}

// billingFields strips bookkeeping so two records can be compared on what
// the user actually has.
func billingFields(s model.Subscription) model.Subscription {
	s.Version = 0
	s.LastEventAt = nil
	s.UpdatedAt = time.Time{}
	return s
}

func TestProcessEvent_CheckoutCompleted(t *testing.T) {
	f := newFixture(t)
	f.store.put(model.Subscription{UserID: 1, StripeCustomerID: "cus_ada"})
	periodEnd := f.now.Add(30 * day)

	f.gateway.On("GetSubscription", mock.Anything, "sub_1").
		Return(&billing.SubscriptionInfo{ID: "sub_1", CustomerID: "cus_ada", PriceID: "price_pro_monthly", CurrentPeriodEnd: periodEnd}, nil)
	f.notifier.On("SendSubscriptionCreated", mock.Anything, ada, "Pro", &periodEnd).Return(nil).Once()

	require.NoError(t, f.mgr.ProcessEvent(context.Background(), checkoutEvent("evt_1", f.now)))

	got := f.store.get(1)
	assert.Equal(t, "sub_1", got.StripeSubscriptionID)
	assert.Equal(t, "price_pro_monthly", got.StripePriceID)
	assert.Equal(t, periodEnd, *got.StripeCurrentPeriodEnd)
	assert.Equal(t, f.now, *got.LastEventAt)
	assert.Contains(t, f.events.recorded, "evt_1")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues(billing.EventCheckoutCompleted, "applied")))
}

func TestProcessEvent_CheckoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.put(model.Subscription{UserID: 1, StripeCustomerID: "cus_ada"})
	periodEnd := f.now.Add(30 * day)

	f.gateway.On("GetSubscription", mock.Anything, "sub_1").
		Return(&billing.SubscriptionInfo{ID: "sub_1", PriceID: "price_pro_monthly", CurrentPeriodEnd: periodEnd}, nil)
	f.notifier.On("SendSubscriptionCreated", mock.Anything, ada, "Pro", mock.Anything).Return(nil)

	require.NoError(t, f.mgr.ProcessEvent(ctx, checkoutEvent("evt_1", f.now)))
	once := f.store.get(1)

	// Redelivery of the same event is acknowledged without side effects.
	require.NoError(t, f.mgr.ProcessEvent(ctx, checkoutEvent("evt_1", f.now)))
	assert.Equal(t, once, f.store.get(1))
	f.notifier.AssertNumberOfCalls(t, "SendSubscriptionCreated", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues(billing.EventCheckoutCompleted, "duplicate")))

	// A second event for the same session overwrites with the same values.
	require.NoError(t, f.mgr.ProcessEvent(ctx, checkoutEvent("evt_2", f.now)))
	assert.Equal(t, billingFields(once), billingFields(f.store.get(1)))
}

func TestProcessEvent_CheckoutResolvesCustomerFromSubscription(t *testing.T) {
	f := newFixture(t)
	f.store.put(model.Subscription{UserID: 1, StripeCustomerID: "cus_ada"})
	periodEnd := f.now.Add(30 * day)

	f.gateway.On("GetSubscription", mock.Anything, "sub_1").
		Return(&billing.SubscriptionInfo{ID: "sub_1", CustomerID: "cus_ada", PriceID: "price_pro_monthly", CurrentPeriodEnd: periodEnd}, nil)
	f.notifier.On("SendSubscriptionCreated", mock.Anything, ada, "Pro", &periodEnd).Return(nil).Once()

	event := checkoutEvent("evt_1", f.now)
	event.CustomerID = ""

	require.NoError(t, f.mgr.ProcessEvent(context.Background(), event))
	assert.Equal(t, "sub_1", f.store.get(1).StripeSubscriptionID)
	assert.Empty(t, event.CustomerID, "the caller's event is left untouched")
}

func TestProcessEvent_ConcurrentDuplicateRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.put(model.Subscription{UserID: 1, StripeCustomerID: "cus_ada"})
	before := f.store.get(1)

	f.gateway.On("GetSubscription", mock.Anything, "sub_1").
		Return(&billing.SubscriptionInfo{ID: "sub_1", PriceID: "price_pro_monthly", CurrentPeriodEnd: f.now.Add(day)}, nil)
	f.events.recordErr = repository.ErrDuplicate

	require.NoError(t, f.mgr.ProcessEvent(context.Background(), checkoutEvent("evt_1", f.now)))
	assert.Equal(t, before, f.store.get(1))
	f.notifier.AssertNotCalled(t, "SendSubscriptionCreated", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessEvent_SubscriptionUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.put(model.Subscription{UserID: 1, StripeCustomerID: "cus_ada", StripeSubscriptionID: "sub_1", StripePriceID: "price_pro_monthly"})
	renewed := f.now.Add(365 * day)

	err := f.mgr.ProcessEvent(ctx, &billing.Event{
		ID:               "evt_upd",
		Type:             billing.EventSubscriptionUpdated,
		Created:          f.now,
		CustomerID:       "cus_ada",
		SubscriptionID:   "sub_1",
		PriceID:          "price_pro_yearly",
		CurrentPeriodEnd: renewed,
	})
	require.NoError(t, err)

	got := f.store.get(1)
	assert.Equal(t, "price_pro_yearly", got.StripePriceID)
	assert.Equal(t, renewed, *got.StripeCurrentPeriodEnd)
	assert.Equal(t, "sub_1", got.StripeSubscriptionID)
}

func TestProcessEvent_UpdateDoesNotResurrectCanceled(t *testing.T) {
	f := newFixture(t)
	end := f.now.Add(10 * day)
	f.store.put(model.Subscription{UserID: 1, StripeCustomerID: "cus_ada", StripePriceID: "price_pro_monthly", StripeCurrentPeriodEnd: &end})

	err := f.mgr.ProcessEvent(context.Background(), &billing.Event{
		ID:                "evt_upd",
		Type:              billing.EventSubscriptionUpdated,
		Created:           f.now,
		CustomerID:        "cus_ada",
		SubscriptionID:    "sub_1",
		PriceID:           "price_pro_monthly",
		CurrentPeriodEnd:  end,
		CancelAtPeriodEnd: true,
	})
	require.NoError(t, err)

	got := f.store.get(1)
	assert.Empty(t, got.StripeSubscriptionID)
	assert.Equal(t, "price_pro_monthly", got.StripePriceID)
}

func TestProcessEvent_StaleEventIsFenced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	end := f.now.Add(30 * day)
	f.store.put(model.Subscription{UserID: 1, StripeCustomerID: "cus_ada", StripeSubscriptionID: "sub_1", StripePriceID: "price_pro_monthly", StripeCurrentPeriodEnd: &end})

	// Deletion arrives first, then an older update is delivered late.
	require.NoError(t, f.mgr.ProcessEvent(ctx, &billing.Event{
		ID:             "evt_del",
		Type:           billing.EventSubscriptionDeleted,
		Created:        f.now,
		CustomerID:     "cus_ada",
		SubscriptionID: "sub_1",
	}))
	deleted := f.store.get(1)
	assert.Empty(t, deleted.StripePriceID)
	assert.Nil(t, deleted.StripeCurrentPeriodEnd)

	require.NoError(t, f.mgr.ProcessEvent(ctx, &billing.Event{
		ID:               "evt_old_upd",
		Type:             billing.EventSubscriptionUpdated,
		Created:          f.now.Add(-time.Minute),
		CustomerID:       "cus_ada",
		SubscriptionID:   "sub_1",
		PriceID:          "price_pro_monthly",
		CurrentPeriodEnd: end,
	}))

	assert.Equal(t, deleted, f.store.get(1))
	assert.Contains(t, f.events.recorded, "evt_old_upd", "stale events are still acknowledged")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues(billing.EventSubscriptionUpdated, "stale")))
}

func TestProcessEvent_PaymentFailedNotifiesWithoutMutation(t *testing.T) {
	f := newFixture(t)
	f.store.put(model.Subscription{UserID: 2, StripeCustomerID: "cus_alan", StripeSubscriptionID: "sub_2", StripePriceID: "price_pro_monthly"})
	before := f.store.get(2)

	f.notifier.On("SendPaymentFailed", mock.Anything, alan).Return(nil).Once()

	err := f.mgr.ProcessEvent(context.Background(), &billing.Event{
		ID:             "evt_inv",
		Type:           billing.EventInvoicePaymentFail,
		Created:        f.now,
		SubscriptionID: "sub_2",
	})
	require.NoError(t, err)
	assert.Equal(t, before, f.store.get(2))
}

func TestProcessEvent_NotificationFailureStillAcknowledges(t *testing.T) {
	f := newFixture(t)
	f.store.put(model.Subscription{UserID: 2, StripeCustomerID: "cus_alan"})
	f.notifier.On("SendPaymentFailed", mock.Anything, alan).Return(errBoom).Once()

	err := f.mgr.ProcessEvent(context.Background(), &billing.Event{
		ID:         "evt_inv",
		Type:       billing.EventInvoicePaymentFail,
		Created:    f.now,
		CustomerID: "cus_alan",
	})
	assert.NoError(t, err)
	assert.Contains(t, f.events.recorded, "evt_inv")
}

func TestProcessEvent_IgnoresUnknownTypeAndCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mgr.ProcessEvent(ctx, &billing.Event{ID: "evt_x", Type: "customer.created", Created: f.now}))
	require.NoError(t, f.mgr.ProcessEvent(ctx, &billing.Event{
		ID:         "evt_y",
		Type:       billing.EventSubscriptionDeleted,
		Created:    f.now,
		CustomerID: "cus_stranger",
	}))
	assert.Zero(t, f.store.saves)
	assert.Len(t, f.events.recorded, 2)
}

func TestProcessEvent_StorageFailureAsksForRetry(t *testing.T) {
	f := newFixture(t)
	f.store.put(model.Subscription{UserID: 1, StripeCustomerID: "cus_ada"})
	f.store.saveErr = errBoom

	err := f.mgr.ProcessEvent(context.Background(), &billing.Event{
		ID:         "evt_del",
		Type:       billing.EventSubscriptionDeleted,
		Created:    f.now,
		CustomerID: "cus_ada",
	})
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.NotContains(t, f.events.recorded, "evt_del", "a failed event is not marked as processed")
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("ParseWebhook", []byte("{}"), "bad").Return(nil, billing.ErrInvalidSignature)

	err := f.mgr.HandleWebhook(context.Background(), []byte("{}"), "bad")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestHandleWebhook_GatewayFailureOnCheckout(t *testing.T) {
	f := newFixture(t)
	event := checkoutEvent("evt_1", f.now)
	f.gateway.On("ParseWebhook", []byte("payload"), "sig").Return(event, nil)
	f.gateway.On("GetSubscription", mock.Anything, "sub_1").Return(nil, errBoom)

	err := f.mgr.HandleWebhook(context.Background(), []byte("payload"), "sig")
	assert.ErrorIs(t, err, apperr.ErrGateway)
	assert.Empty(t, f.events.recorded)
}
