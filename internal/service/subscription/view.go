package subscription

import (
	"context"
	"time"

	"askhub_backend/pkg/apperr"
	"askhub_backend/pkg/pricing"
)

// View is what a user sees of their own billing state.
type View struct {
	Plan             pricing.Plan     `json:"plan"`
	Interval         pricing.Interval `json:"interval,omitempty"`
	IsPaid           bool             `json:"is_paid"`
	IsCanceled       bool             `json:"is_canceled"`
	IsTrialActive    bool             `json:"is_trial_active"`
	TrialEndDate     *time.Time       `json:"trial_end_date,omitempty"`
	CurrentPeriodEnd *time.Time       `json:"current_period_end,omitempty"`
	HasUsedTrial     bool             `json:"has_used_trial"`
}

// GetUserSubscription derives the user's plan. Users that are neither paid
// nor trialing get ErrSubscriptionRequired.
func (m *Manager) GetUserSubscription(ctx context.Context, userID uint) (*View, error) {
	if _, err := m.loadUser(ctx, userID); err != nil {
		return nil, err
	}
	sub, err := m.loadOrInit(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	isPaid := sub.IsPaid(now, m.cfg.Grace)
	trialActive := sub.TrialRunning(now)
	if !isPaid && !trialActive {
		return nil, apperr.New(apperr.ErrSubscriptionRequired, "an active subscription or trial is required")
	}

	v := &View{
		Plan:          m.catalog.Free(),
		IsPaid:        isPaid,
		IsTrialActive: trialActive,
		TrialEndDate:  sub.TrialEndDate,
		HasUsedTrial:  sub.HasUsedTrial,
	}
	if !isPaid {
		return v, nil
	}

	plan, interval, ok := m.catalog.FindByPriceID(sub.StripePriceID)
	if !ok {
		m.log.Warn().Uint("user_id", userID).Str("price_id", sub.StripePriceID).Msg("paid subscription has unknown price")
		return nil, apperr.New(apperr.ErrInvalidPlan, "subscription plan is no longer offered")
	}
	v.Plan = plan
	v.Interval = interval
	v.CurrentPeriodEnd = sub.StripeCurrentPeriodEnd

	if !sub.HasGatewaySubscription() {
		// Canceled locally; paid access runs out at period end.
		v.IsCanceled = true
		return v, nil
	}

	live, err := m.gateway.GetSubscription(ctx, sub.StripeSubscriptionID)
	if err != nil {
		return nil, m.gatewayErr(err, "load subscription", userID)
	}
	v.IsCanceled = live.CancelAtPeriodEnd || live.Status == "canceled"
	return v, nil
}
