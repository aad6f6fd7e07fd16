package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"askhub_backend/pkg/metrics"
)

type StripeOptions struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	MaxRetries    int64
	// BaseURL overrides the API endpoint. Empty means api.stripe.com.
	BaseURL string
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

type StripeGateway struct {
	api           *client.API
	webhookSecret string
	metrics       *metrics.Metrics
	log           zerolog.Logger
}

func NewStripeGateway(opts StripeOptions) *StripeGateway {
	retries := opts.MaxRetries
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: opts.Timeout},
		MaxNetworkRetries: &retries,
		LeveledLogger:     &leveledLogger{log: opts.Logger},
	}
	if opts.BaseURL != "" {
		cfg.URL = stripe.String(opts.BaseURL)
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.NewNop()
	}

	return &StripeGateway{
		api: client.New(opts.SecretKey, &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
		}),
		webhookSecret: opts.WebhookSecret,
		metrics:       m,
		log:           opts.Logger,
	}
}

func (g *StripeGateway) observe(op string, err error) error {
	status := "ok"
	if err != nil {
		status = "error"
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			status = string(stripeErr.Type)
		}
	}
	g.metrics.GatewayRequests.WithLabelValues(op, status).Inc()
	return err
}

// idempotencyKey derives a stable key so a retried request cannot create a
// second object on the provider side.
func idempotencyKey(parts ...string) string {
	name := ""
	for _, p := range parts {
		name += p + ":"
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, c CustomerRequest) (string, error) {
	userID := strconv.FormatUint(uint64(c.UserID), 10)
	params := &stripe.CustomerParams{
		Email: stripe.String(c.Email),
		Name:  stripe.String(c.Name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	params.SetIdempotencyKey(idempotencyKey("customer", userID))

	cus, err := g.api.Customers.New(params)
	if err := g.observe("customers.create", err); err != nil {
		return "", fmt.Errorf("create customer for user %s: %w", userID, err)
	}
	return cus.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	userID := strconv.FormatUint(uint64(req.UserID), 10)
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(req.CustomerID),
		ClientReferenceID: stripe.String(userID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID},
		},
	}
	if req.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(req.TrialDays)
	}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.New(params)
	if err := g.observe("checkout_sessions.create", err); err != nil {
		return nil, fmt.Errorf("create checkout session for user %s: %w", userID, err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := g.api.Subscriptions.Get(subscriptionID, params)
	if err := g.observe("subscriptions.get", err); err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}
	return subscriptionInfo(sub), nil
}

func (g *StripeGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx

	_, err := g.api.Subscriptions.Update(subscriptionID, params)
	if err := g.observe("subscriptions.cancel", err); err != nil {
		return fmt.Errorf("cancel subscription %s: %w", subscriptionID, err)
	}
	return nil
}

func (g *StripeGateway) ChangePrice(ctx context.Context, sub *SubscriptionInfo, priceID string) error {
	if sub.ItemID == "" {
		return fmt.Errorf("subscription %s has no items", sub.ID)
	}
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.ItemID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	// Each plan change is a new intent: A->B after B->A must reach Stripe again.
	// stripe-go reuses this key across its own network retries.
	params.SetIdempotencyKey(uuid.NewString())

	_, err := g.api.Subscriptions.Update(sub.ID, params)
	if err := g.observe("subscriptions.update", err); err != nil {
		return fmt.Errorf("change price of subscription %s: %w", sub.ID, err)
	}
	return nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		g.log.Warn().Err(err).Msg("rejected webhook payload")
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return normalizeEvent(event, payload)
}

func normalizeEvent(event stripe.Event, payload []byte) (*Event, error) {
	e := &Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
		Raw:     json.RawMessage(payload),
	}
	if event.Data == nil {
		return e, nil
	}

	switch e.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session in %s: %w", event.ID, err)
		}
		if sess.Customer != nil {
			e.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			e.SubscriptionID = sess.Subscription.ID
		}

	case EventInvoicePaymentFail:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice in %s: %w", event.ID, err)
		}
		if inv.Customer != nil {
			e.CustomerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			e.SubscriptionID = inv.Subscription.ID
		}

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription in %s: %w", event.ID, err)
		}
		info := subscriptionInfo(&sub)
		e.CustomerID = info.CustomerID
		e.SubscriptionID = info.ID
		e.PriceID = info.PriceID
		e.CurrentPeriodEnd = info.CurrentPeriodEnd
		e.CancelAtPeriodEnd = info.CancelAtPeriodEnd
	}

	return e, nil
}

func subscriptionInfo(sub *stripe.Subscription) *SubscriptionInfo {
	info := &SubscriptionInfo{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd > 0 {
		info.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.Customer != nil {
		info.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		info.ItemID = item.ID
		if item.Price != nil {
			info.PriceID = item.Price.ID
		}
	}
	return info
}

// leveledLogger routes stripe-go's internal logging through zerolog.
type leveledLogger struct {
	log zerolog.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
func (l *leveledLogger) Infof(format string, v ...interface{})  { l.log.Debug().Msgf(format, v...) }
func (l *leveledLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l *leveledLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
