package subscription

import (
	"context"

	"askhub_backend/pkg/apperr"
	"askhub_backend/pkg/billing"
)

type CheckoutInput struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CreateCheckout opens a Stripe Checkout session for priceID. The Stripe
// customer is created on first use and remembered on the record.
func (m *Manager) CreateCheckout(ctx context.Context, userID uint, in CheckoutInput) (*billing.CheckoutSession, error) {
	if !m.catalog.KnowsPrice(in.PriceID) {
		return nil, apperr.New(apperr.ErrInvalidPlan, "price %q is not offered", in.PriceID)
	}

	user, err := m.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub, err := m.loadOrInit(ctx, userID)
	if err != nil {
		return nil, err
	}

	if sub.StripeCustomerID == "" {
		customerID, err := m.gateway.CreateCustomer(ctx, billing.CustomerRequest{
			UserID: user.ID,
			Email:  user.Email,
			Name:   user.DisplayName(),
		})
		if err != nil {
			return nil, m.gatewayErr(err, "create customer", userID)
		}
		sub.StripeCustomerID = customerID
		if err := m.save(ctx, sub); err != nil {
			return nil, err
		}
		m.log.Info().Uint("user_id", userID).Str("customer_id", customerID).Msg("stripe customer created")
	}

	session, err := m.gateway.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		UserID:     userID,
		CustomerID: sub.StripeCustomerID,
		PriceID:    in.PriceID,
		SuccessURL: in.SuccessURL,
		CancelURL:  in.CancelURL,
		TrialDays:  int64(m.cfg.TrialDays),
	})
	if err != nil {
		return nil, m.gatewayErr(err, "create checkout session", userID)
	}
	return session, nil
}

// CancelSubscription schedules cancellation at period end and forgets the
// subscription id locally. The user stays paid until the period runs out.
func (m *Manager) CancelSubscription(ctx context.Context, userID uint) error {
	if _, err := m.loadUser(ctx, userID); err != nil {
		return err
	}
	sub, err := m.store.FindByUserID(ctx, userID)
	if err != nil {
		return apperr.Storage(err, "load subscription")
	}
	if sub == nil || !sub.HasGatewaySubscription() {
		return apperr.New(apperr.ErrNoActiveSubscription, "no active subscription")
	}

	if err := m.gateway.CancelAtPeriodEnd(ctx, sub.StripeSubscriptionID); err != nil {
		return m.gatewayErr(err, "cancel subscription", userID)
	}

	sub.StripeSubscriptionID = ""
	if err := m.save(ctx, sub); err != nil {
		return err
	}
	m.log.Info().Uint("user_id", userID).Msg("subscription set to cancel at period end")
	return nil
}

// ChangePlan moves the subscription to newPriceID with proration.
func (m *Manager) ChangePlan(ctx context.Context, userID uint, newPriceID string) error {
	if !m.catalog.KnowsPrice(newPriceID) {
		return apperr.New(apperr.ErrInvalidPlan, "price %q is not offered", newPriceID)
	}
	if _, err := m.loadUser(ctx, userID); err != nil {
		return err
	}
	sub, err := m.store.FindByUserID(ctx, userID)
	if err != nil {
		return apperr.Storage(err, "load subscription")
	}
	if sub == nil || !sub.HasGatewaySubscription() {
		return apperr.New(apperr.ErrNoActiveSubscription, "no active subscription")
	}

	current, err := m.gateway.GetSubscription(ctx, sub.StripeSubscriptionID)
	if err != nil {
		return m.gatewayErr(err, "load subscription", userID)
	}
	if err := m.gateway.ChangePrice(ctx, current, newPriceID); err != nil {
		return m.gatewayErr(err, "change plan", userID)
	}

	sub.StripePriceID = newPriceID
	if err := m.save(ctx, sub); err != nil {
		return err
	}
	m.log.Info().Uint("user_id", userID).Str("price_id", newPriceID).Msg("subscription plan changed")
	return nil
}

// StartTrial opens the one free trial a user gets.
func (m *Manager) StartTrial(ctx context.Context, userID uint) (*View, error) {
	if _, err := m.loadUser(ctx, userID); err != nil {
		return nil, err
	}
	sub, err := m.loadOrInit(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sub.CanStartTrial() {
		return nil, apperr.Validation("free trial already used")
	}
	if m.cfg.TrialDays <= 0 {
		return nil, apperr.Validation("free trials are not offered")
	}

	sub.StartTrial(m.now(), m.trialLength())
	if err := m.save(ctx, sub); err != nil {
		return nil, err
	}
	m.log.Info().Uint("user_id", userID).Time("trial_end", *sub.TrialEndDate).Msg("trial started")
	return m.GetUserSubscription(ctx, userID)
}
