package subscription

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"askhub_backend/internal/model"
	"askhub_backend/pkg/apperr"
)

const day = 24 * time.Hour

// TrialAction is what the trial sweep did for one user.
type TrialAction string

const (
	TrialNone       TrialAction = "none"
	TrialSkippedPay TrialAction = "skipped_paid"
	TrialEnding     TrialAction = "ending_notice"
	TrialLastDay    TrialAction = "last_day_notice"
	TrialEnded      TrialAction = "ended"
)

type TrialSweepReport struct {
	Scanned int                 `json:"scanned"`
	Actions map[TrialAction]int `json:"actions"`
	Failed  int                 `json:"failed"`
}

type ExpirationSweepReport struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// ClassifyTrial decides the sweep action for a trial ending at trialEnd.
// Trials ending more than three days out, or that ended a day or more ago,
// need nothing. The one-day window after the end fires exactly once per
// daily sweep.
func ClassifyTrial(now, trialEnd time.Time) (TrialAction, int) {
	remaining := trialEnd.Sub(now)
	switch {
	case remaining > 3*day:
		return TrialNone, 0
	case remaining > day:
		return TrialEnding, int(math.Ceil(remaining.Hours() / 24))
	case remaining > 0:
		return TrialLastDay, 0
	case remaining > -day:
		return TrialEnded, 0
	default:
		return TrialNone, 0
	}
}

// CheckTrialExpiration walks every active trial, sends the ending notices and
// closes trials that just ran out. A failure for one user is logged and
// counted; the sweep moves on to the next.
func (m *Manager) CheckTrialExpiration(ctx context.Context) (*TrialSweepReport, error) {
	trials, err := m.store.ListActiveTrials(ctx)
	if err != nil {
		return nil, apperr.Storage(err, "list active trials")
	}

	report := &TrialSweepReport{Actions: map[TrialAction]int{}}
	now := m.now()

	for i := range trials {
		sub := &trials[i]
		report.Scanned++

		log := m.log.With().Uint("user_id", sub.UserID).Logger()
		action, err := m.sweepTrial(ctx, log, sub, now)
		if err != nil {
			report.Failed++
			log.Error().Err(err).Str("action", string(action)).Msg("trial sweep failed for user")
			continue
		}
		report.Actions[action]++
		if action != TrialNone {
			m.metrics.SweepActions.WithLabelValues("trial", string(action)).Inc()
		}
	}

	m.log.Info().
		Int("scanned", report.Scanned).
		Int("failed", report.Failed).
		Interface("actions", report.Actions).
		Msg("trial sweep finished")
	return report, nil
}

func (m *Manager) sweepTrial(ctx context.Context, log zerolog.Logger, sub *model.Subscription, now time.Time) (TrialAction, error) {
	if sub.StripePriceID != "" {
		return TrialSkippedPay, nil
	}
	if sub.TrialEndDate == nil {
		log.Warn().Msg("active trial without end date")
		return TrialNone, nil
	}

	action, daysLeft := ClassifyTrial(now, *sub.TrialEndDate)
	if action == TrialNone {
		return action, nil
	}

	user, err := m.loadUser(ctx, sub.UserID)
	if err != nil {
		return action, err
	}
	to := recipient(user)

	switch action {
	case TrialEnding:
		return action, m.notifier.SendTrialEnding(ctx, to, daysLeft, *sub.TrialEndDate)
	case TrialLastDay:
		return action, m.notifier.SendTrialLastDay(ctx, to)
	case TrialEnded:
		sub.EndTrial()
		if err := m.save(ctx, sub); err != nil {
			return action, err
		}
		log.Info().Msg("trial ended")
		return action, m.notifier.SendTrialEnded(ctx, to)
	}
	return action, nil
}

// CheckSubscriptionExpiration clears paid subscriptions whose period has
// ended and tells their owners.
func (m *Manager) CheckSubscriptionExpiration(ctx context.Context) (*ExpirationSweepReport, error) {
	expired, err := m.store.ListExpiredPaid(ctx, m.now())
	if err != nil {
		return nil, apperr.Storage(err, "list expired subscriptions")
	}

	report := &ExpirationSweepReport{}
	for i := range expired {
		sub := &expired[i]
		report.Scanned++

		if err := m.expire(ctx, sub); err != nil {
			report.Failed++
			m.log.Error().Err(err).Uint("user_id", sub.UserID).Msg("subscription expiration failed for user")
			continue
		}
		report.Expired++
		m.metrics.SweepActions.WithLabelValues("subscription", "expired").Inc()
	}

	m.log.Info().
		Int("scanned", report.Scanned).
		Int("expired", report.Expired).
		Int("failed", report.Failed).
		Msg("subscription sweep finished")
	return report, nil
}

func (m *Manager) expire(ctx context.Context, sub *model.Subscription) error {
	user, err := m.loadUser(ctx, sub.UserID)
	if err != nil {
		return err
	}

	sub.ClearPaid()
	if err := m.save(ctx, sub); err != nil {
		return err
	}
	return m.notifier.SendSubscriptionExpired(ctx, recipient(user))
}
