package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"askhub_backend/internal/model"
	"askhub_backend/internal/repository"
	"askhub_backend/pkg/billing"
	"askhub_backend/pkg/email"
	"askhub_backend/pkg/logger"
	"askhub_backend/pkg/metrics"
	"askhub_backend/pkg/pricing"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCustomer(ctx context.Context, c billing.CustomerRequest) (string, error) {
	args := m.Called(ctx, c)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if s := args.Get(0); s != nil {
		return s.(*billing.CheckoutSession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) GetSubscription(ctx context.Context, id string) (*billing.SubscriptionInfo, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*billing.SubscriptionInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) CancelAtPeriodEnd(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockGateway) ChangePrice(ctx context.Context, sub *billing.SubscriptionInfo, priceID string) error {
	return m.Called(ctx, sub, priceID).Error(0)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(payload, signature)
	if e := args.Get(0); e != nil {
		return e.(*billing.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendSubscriptionCreated(ctx context.Context, to email.Recipient, planName string, periodEnd *time.Time) error {
	return m.Called(ctx, to, planName, periodEnd).Error(0)
}

func (m *mockNotifier) SendPaymentFailed(ctx context.Context, to email.Recipient) error {
	return m.Called(ctx, to).Error(0)
}

func (m *mockNotifier) SendTrialEnding(ctx context.Context, to email.Recipient, daysLeft int, trialEnd time.Time) error {
	return m.Called(ctx, to, daysLeft, trialEnd).Error(0)
}

func (m *mockNotifier) SendTrialLastDay(ctx context.Context, to email.Recipient) error {
	return m.Called(ctx, to).Error(0)
}

func (m *mockNotifier) SendTrialEnded(ctx context.Context, to email.Recipient) error {
	return m.Called(ctx, to).Error(0)
}

func (m *mockNotifier) SendSubscriptionExpired(ctx context.Context, to email.Recipient) error {
	return m.Called(ctx, to).Error(0)
}

type memoryUsers map[uint]*model.User

func (u memoryUsers) FindByID(_ context.Context, id uint) (*model.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

// memoryStore mirrors the versioned save of the SQL repository.
type memoryStore struct {
	mu     sync.Mutex
	rows   map[uint]model.Subscription
	nextID uint
	saves  int

	saveErr error
	listErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: map[uint]model.Subscription{}}
}

func (s *memoryStore) put(sub model.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub.ID = s.nextID
	sub.Version = 1
	s.rows[sub.UserID] = sub
}

func (s *memoryStore) get(userID uint) model.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[userID]
}

func (s *memoryStore) find(match func(model.Subscription) bool) (*model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if match(row) {
			cp := row
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) FindByUserID(_ context.Context, userID uint) (*model.Subscription, error) {
	return s.find(func(r model.Subscription) bool { return r.UserID == userID })
}

func (s *memoryStore) FindByCustomerID(_ context.Context, id string) (*model.Subscription, error) {
	if id == "" {
		return nil, nil
	}
	return s.find(func(r model.Subscription) bool { return r.StripeCustomerID == id })
}

func (s *memoryStore) FindBySubscriptionID(_ context.Context, id string) (*model.Subscription, error) {
	if id == "" {
		return nil, nil
	}
	return s.find(func(r model.Subscription) bool { return r.StripeSubscriptionID == id })
}

func (s *memoryStore) Save(_ context.Context, sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}

	stored, exists := s.rows[sub.UserID]
	switch {
	case sub.ID == 0 && exists:
		return repository.ErrVersionMismatch
	case sub.ID == 0:
		s.nextID++
		sub.ID = s.nextID
		sub.Version = 1
	case stored.Version != sub.Version:
		return repository.ErrVersionMismatch
	default:
		sub.Version++
	}
	s.saves++
	s.rows[sub.UserID] = *sub
	return nil
}

func (s *memoryStore) ListActiveTrials(context.Context) ([]model.Subscription, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Subscription
	for id := uint(1); id <= 1000; id++ {
		if r, ok := s.rows[id]; ok && r.IsTrialActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) ListExpiredPaid(_ context.Context, now time.Time) ([]model.Subscription, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Subscription
	for id := uint(1); id <= 1000; id++ {
		r, ok := s.rows[id]
		if ok && r.StripePriceID != "" && r.StripeCurrentPeriodEnd != nil && r.StripeCurrentPeriodEnd.Before(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

type memoryEvents struct {
	recorded map[string]model.BillingEvent
	// recordErr is returned once in place of storing the next event.
	recordErr error
}

func newMemoryEvents() *memoryEvents {
	return &memoryEvents{recorded: map[string]model.BillingEvent{}}
}

func (e *memoryEvents) Exists(_ context.Context, id string) (bool, error) {
	_, ok := e.recorded[id]
	return ok, nil
}

func (e *memoryEvents) Record(_ context.Context, ev *model.BillingEvent) error {
	if err := e.recordErr; err != nil {
		e.recordErr = nil
		return err
	}
	if _, ok := e.recorded[ev.EventID]; ok {
		return repository.ErrDuplicate
	}
	e.recorded[ev.EventID] = *ev
	return nil
}

// snapshotTx restores the store when fn fails, like a rolled back transaction.
type snapshotTx struct {
	store *memoryStore
}

func (t snapshotTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.store.mu.Lock()
	before := make(map[uint]model.Subscription, len(t.store.rows))
	for k, v := range t.store.rows {
		before[k] = v
	}
	t.store.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.store.mu.Lock()
		t.store.rows = before
		t.store.mu.Unlock()
		return err
	}
	return nil
}

var errBoom = errors.New("boom")

type fixture struct {
	users    memoryUsers
	store    *memoryStore
	events   *memoryEvents
	gateway  *mockGateway
	notifier *mockNotifier
	metrics  *metrics.Metrics
	mgr      *Manager
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users: memoryUsers{
			1: {Email: "ada@example.com", Username: "ada", FirstName: "Ada", LastName: "Lovelace"},
			2: {Email: "alan@example.com", Username: "alan"},
			3: {Email: "grace@example.com", Username: "grace"},
		},
		store:    newMemoryStore(),
		events:   newMemoryEvents(),
		gateway:  &mockGateway{},
		notifier: &mockNotifier{},
		metrics:  metrics.NewNop(),
		now:      time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	for id, u := range f.users {
		u.ID = id
	}

	f.mgr = NewManager(Deps{
		Users:    f.users,
		Store:    f.store,
		Events:   f.events,
		Gateway:  f.gateway,
		Notifier: f.notifier,
		Catalog:  pricing.Default(),
		Tx:       snapshotTx{store: f.store},
		Metrics:  f.metrics,
		Logger:   logger.Nop(),
	}, Config{TrialDays: 7, Grace: 24 * time.Hour}).WithClock(func() time.Time { return f.now })

	t.Cleanup(func() {
		f.gateway.AssertExpectations(t)
		f.notifier.AssertExpectations(t)
	})
	return f
}

func ptr[T any](v T) *T { return &v }
