package model

import "time"

// Subscription is the billing state a user owns: the Stripe customer and
// subscription it is linked to plus the free trial window. One row per user.
type Subscription struct {
	ID     uint `json:"-" gorm:"primaryKey"`
	UserID uint `json:"user_id" gorm:"uniqueIndex;not null"`

	StripeCustomerID       string     `json:"stripe_customer_id" gorm:"index"`
	StripeSubscriptionID   string     `json:"stripe_subscription_id" gorm:"index"`
	StripePriceID          string     `json:"stripe_price_id"`
	StripeCurrentPeriodEnd *time.Time `json:"stripe_current_period_end"`

	IsTrialActive  bool       `json:"is_trial_active" gorm:"index;not null;default:false"`
	TrialStartDate *time.Time `json:"trial_start_date"`
	TrialEndDate   *time.Time `json:"trial_end_date"`
	HasUsedTrial   bool       `json:"has_used_trial" gorm:"not null;default:false"`

	// Version is bumped on every save and checked against the stored value.
	Version     int64      `json:"-" gorm:"not null;default:0"`
	LastEventAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// HasGatewaySubscription reports whether Stripe tracks a live subscription.
func (s *Subscription) HasGatewaySubscription() bool {
	return s.StripeSubscriptionID != ""
}

// IsPaid reports whether the paid period extends beyond now+grace.
func (s *Subscription) IsPaid(now time.Time, grace time.Duration) bool {
	return s.StripePriceID != "" &&
		s.StripeCurrentPeriodEnd != nil &&
		s.StripeCurrentPeriodEnd.After(now.Add(grace))
}

// TrialRunning reports whether the trial is flagged active and has not yet
// reached its end date. A flag the sweep never cleared does not count.
func (s *Subscription) TrialRunning(now time.Time) bool {
	return s.IsTrialActive && s.TrialEndDate != nil && now.Before(*s.TrialEndDate)
}

// CanStartTrial is false once a trial has been used or is running.
func (s *Subscription) CanStartTrial() bool {
	return !s.HasUsedTrial && !s.IsTrialActive
}

func (s *Subscription) StartTrial(now time.Time, length time.Duration) {
	end := now.Add(length)
	s.IsTrialActive = true
	s.TrialStartDate = &now
	s.TrialEndDate = &end
}

// EndTrial deactivates the trial. HasUsedTrial is never reset.
func (s *Subscription) EndTrial() {
	s.IsTrialActive = false
	s.TrialStartDate = nil
	s.TrialEndDate = nil
	s.HasUsedTrial = true
}

func (s *Subscription) ApplyPaid(subscriptionID, priceID string, periodEnd time.Time) {
	s.StripeSubscriptionID = subscriptionID
	s.StripePriceID = priceID
	s.StripeCurrentPeriodEnd = &periodEnd
}

func (s *Subscription) ClearPaid() {
	s.StripeSubscriptionID = ""
	s.StripePriceID = ""
	s.StripeCurrentPeriodEnd = nil
}

// IsStale reports whether a gateway event created at eventAt predates the
// newest event already applied.
func (s *Subscription) IsStale(eventAt time.Time) bool {
	return s.LastEventAt != nil && eventAt.Before(*s.LastEventAt)
}

func (s *Subscription) MarkEvent(eventAt time.Time) {
	if s.LastEventAt == nil || eventAt.After(*s.LastEventAt) {
		t := eventAt
		s.LastEventAt = &t
	}
}
