package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"askhub_backend/internal/model"
	"askhub_backend/internal/repository"
	"askhub_backend/pkg/apperr"
	"askhub_backend/pkg/billing"
	"askhub_backend/pkg/email"
	"askhub_backend/pkg/metrics"
	"askhub_backend/pkg/pricing"
)

type Users interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

type Store interface {
	FindByUserID(ctx context.Context, userID uint) (*model.Subscription, error)
	FindByCustomerID(ctx context.Context, customerID string) (*model.Subscription, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	Save(ctx context.Context, s *model.Subscription) error
	ListActiveTrials(ctx context.Context) ([]model.Subscription, error)
	ListExpiredPaid(ctx context.Context, now time.Time) ([]model.Subscription, error)
}

type EventLog interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, e *model.BillingEvent) error
}

type Notifier interface {
	SendSubscriptionCreated(ctx context.Context, to email.Recipient, planName string, periodEnd *time.Time) error
	SendPaymentFailed(ctx context.Context, to email.Recipient) error
	SendTrialEnding(ctx context.Context, to email.Recipient, daysLeft int, trialEnd time.Time) error
	SendTrialLastDay(ctx context.Context, to email.Recipient) error
	SendTrialEnded(ctx context.Context, to email.Recipient) error
	SendSubscriptionExpired(ctx context.Context, to email.Recipient) error
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config struct {
	TrialDays int
	// Grace is how far past now a period end must lie for the user to count as paid.
	Grace time.Duration
}

type Deps struct {
	Users    Users
	Store    Store
	Events   EventLog
	Gateway  billing.Gateway
	Notifier Notifier
	Catalog  *pricing.Catalog
	Tx       Transactor
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Manager runs the subscription and trial lifecycle. Stripe owns the truth;
// the local record is reconciled through webhooks and periodic sweeps.
type Manager struct {
	users    Users
	store    Store
	events   EventLog
	gateway  billing.Gateway
	notifier Notifier
	catalog  *pricing.Catalog
	tx       Transactor
	metrics  *metrics.Metrics
	log      zerolog.Logger
	cfg      Config
	now      func() time.Time
}

func NewManager(deps Deps, cfg Config) *Manager {
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &Manager{
		users:    deps.Users,
		store:    deps.Store,
		events:   deps.Events,
		gateway:  deps.Gateway,
		notifier: deps.Notifier,
		catalog:  deps.Catalog,
		tx:       deps.Tx,
		metrics:  m,
		log:      deps.Logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) Catalog() *pricing.Catalog {
	return m.catalog
}

func (m *Manager) trialLength() time.Duration {
	return time.Duration(m.cfg.TrialDays) * 24 * time.Hour
}

func (m *Manager) loadUser(ctx context.Context, userID uint) (*model.User, error) {
	u, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(err, "load user")
	}
	if u == nil {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

// loadOrInit returns the user's record, or an unsaved empty one.
func (m *Manager) loadOrInit(ctx context.Context, userID uint) (*model.Subscription, error) {
	s, err := m.store.FindByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(err, "load subscription")
	}
	if s == nil {
		s = &model.Subscription{UserID: userID}
	}
	return s, nil
}

func (m *Manager) save(ctx context.Context, s *model.Subscription) error {
	if err := m.store.Save(ctx, s); err != nil {
		if errors.Is(err, repository.ErrVersionMismatch) {
			return apperr.Wrap(apperr.ErrConflict, err, "subscription changed concurrently, try again")
		}
		return apperr.Storage(err, "save subscription")
	}
	return nil
}

func (m *Manager) gatewayErr(err error, op string, userID uint) error {
	m.log.Error().Err(err).Uint("user_id", userID).Str("operation", op).Msg("payment provider call failed")
	return apperr.Gateway(err, op)
}

func recipient(u *model.User) email.Recipient {
	return email.Recipient{Email: u.Email, Name: u.DisplayName()}
}
