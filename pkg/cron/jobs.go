package cron

import (
	"context"
	"time"

	"askhub_backend/internal/service/subscription"
)

// Sweeper runs the periodic subscription checks.
type Sweeper interface {
	CheckTrialExpiration(ctx context.Context) (*subscription.TrialSweepReport, error)
	CheckSubscriptionExpiration(ctx context.Context) (*subscription.ExpirationSweepReport, error)
}

const sweepTimeout = 10 * time.Minute

// SweepJobs returns the trial and subscription expiration jobs.
func SweepJobs(s Sweeper, trialSpec, subscriptionSpec string) []Job {
	return []Job{
		{
			Name:    "trial-expiration",
			Spec:    trialSpec,
			Timeout: sweepTimeout,
			Run: func(ctx context.Context) error {
				_, err := s.CheckTrialExpiration(ctx)
				return err
			},
		},
		{
			Name:    "subscription-expiration",
			Spec:    subscriptionSpec,
			Timeout: sweepTimeout,
			Run: func(ctx context.Context) error {
				_, err := s.CheckSubscriptionExpiration(ctx)
				return err
			},
		},
	}
}
