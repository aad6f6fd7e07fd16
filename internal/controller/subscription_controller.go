package controller

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"askhub_backend/internal/middleware"
	"askhub_backend/internal/service/subscription"
	"askhub_backend/pkg/billing"
	"askhub_backend/pkg/pricing"
)

const stripeSignatureHeader = "Stripe-Signature"

type Billing interface {
	Catalog() *pricing.Catalog
	GetUserSubscription(ctx context.Context, userID uint) (*subscription.View, error)
	CreateCheckout(ctx context.Context, userID uint, in subscription.CheckoutInput) (*billing.CheckoutSession, error)
	CancelSubscription(ctx context.Context, userID uint) error
	ChangePlan(ctx context.Context, userID uint, newPriceID string) error
	StartTrial(ctx context.Context, userID uint) (*subscription.View, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type SubscriptionController struct {
	billing     Billing
	frontendURL string
}

func NewSubscriptionController(b Billing, frontendURL string) *SubscriptionController {
	return &SubscriptionController{
		billing:     b,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

type CheckoutRequest struct {
	PriceID    string `json:"price_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"omitempty,http_url"`
	CancelURL  string `json:"cancel_url" validate:"omitempty,http_url"`
}

type ChangePlanRequest struct {
	PriceID string `json:"price_id" validate:"required"`
}

func (sc *SubscriptionController) ListPlans(c *fiber.Ctx) error {
	return ok(c, fiber.Map{"plans": sc.billing.Catalog().Plans})
}

func (sc *SubscriptionController) GetMySubscription(c *fiber.Ctx) error {
	claims, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}

	view, err := sc.billing.GetUserSubscription(c.UserContext(), claims.UserID)
	if err != nil {
		return err
	}
	return ok(c, view)
}

func (sc *SubscriptionController) CreateCheckoutSession(c *fiber.Ctx) error {
	claims, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}

	input := new(CheckoutRequest)
	if err := parseBody(c, input); err != nil {
		return err
	}
	if input.SuccessURL == "" {
		input.SuccessURL = sc.frontendURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}"
	}
	if input.CancelURL == "" {
		input.CancelURL = sc.frontendURL + "/billing/cancel"
	}

	session, err := sc.billing.CreateCheckout(c.UserContext(), claims.UserID, subscription.CheckoutInput{
		PriceID:    input.PriceID,
		SuccessURL: input.SuccessURL,
		CancelURL:  input.CancelURL,
	})
	if err != nil {
		return err
	}

	return ok(c, fiber.Map{
		"session_id": session.ID,
		"url":        session.URL,
	})
}

func (sc *SubscriptionController) CancelSubscription(c *fiber.Ctx) error {
	claims, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}

	if err := sc.billing.CancelSubscription(c.UserContext(), claims.UserID); err != nil {
		return err
	}
	return ok(c, fiber.Map{"canceled": true})
}

func (sc *SubscriptionController) ChangePlan(c *fiber.Ctx) error {
	claims, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}

	input := new(ChangePlanRequest)
	if err := parseBody(c, input); err != nil {
		return err
	}

	if err := sc.billing.ChangePlan(c.UserContext(), claims.UserID, input.PriceID); err != nil {
		return err
	}
	return ok(c, fiber.Map{"price_id": input.PriceID})
}

func (sc *SubscriptionController) StartTrial(c *fiber.Ctx) error {
	claims, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}

	view, err := sc.billing.StartTrial(c.UserContext(), claims.UserID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(Response{Success: true, Data: view})
}

// HandleStripeWebhook answers 2xx only once the event is stored, so Stripe
// retries everything else.
func (sc *SubscriptionController) HandleStripeWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	if err := sc.billing.HandleWebhook(c.UserContext(), payload, c.Get(stripeSignatureHeader)); err != nil {
		return err
	}
	return ok(c, fiber.Map{"received": true})
}
