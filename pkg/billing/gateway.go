// Package billing talks to the payment provider. Gateway hides the provider SDK
// behind plain values so the subscription use cases can be tested with mocks.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Webhook event types handled by the subscription lifecycle.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaymentFail  = "invoice.payment_failed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type Gateway interface {
	CreateCustomer(ctx context.Context, c CustomerRequest) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
	// ChangePrice swaps the price on the subscription's first item, prorating.
	ChangePrice(ctx context.Context, sub *SubscriptionInfo, priceID string) error
	// ParseWebhook verifies the signature header and normalizes the event.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

type CustomerRequest struct {
	UserID uint
	Email  string
	Name   string
}

type CheckoutRequest struct {
	UserID     uint
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	TrialDays  int64
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type SubscriptionInfo struct {
	ID                string
	CustomerID        string
	Status            string
	ItemID            string
	PriceID           string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

// Event is a verified webhook event reduced to the fields the lifecycle
// reads. Fields that the event type does not carry are left empty.
type Event struct {
	ID      string
	Type    string
	Created time.Time

	CustomerID        string
	SubscriptionID    string
	PriceID           string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool

	Raw json.RawMessage
}
