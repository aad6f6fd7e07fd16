package controller

import "github.com/gofiber/fiber/v2"

// SetupRoutes mounts the API. auth guards every route that needs a user.
func SetupRoutes(app fiber.Router, auth fiber.Handler, votes *VoteController, subs *SubscriptionController) {
	api := app.Group("/api")

	// Votes
	api.Post("/questions/:id/vote", auth, votes.VoteQuestion)
	api.Post("/answers/:id/vote", auth, votes.VoteAnswer)

	// Subscriptions
	subscriptions := api.Group("/subscriptions")
	subscriptions.Get("/plans", subs.ListPlans)
	subscriptions.Get("/me", auth, subs.GetMySubscription)
	subscriptions.Post("/checkout", auth, subs.CreateCheckoutSession)
	subscriptions.Post("/cancel", auth, subs.CancelSubscription)
	subscriptions.Post("/change-plan", auth, subs.ChangePlan)
	subscriptions.Post("/trial", auth, subs.StartTrial)

	// Stripe webhook
	api.Post("/webhook", subs.HandleStripeWebhook)
}
