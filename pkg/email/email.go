package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"
)

type Options struct {
	AppName      string
	AppURL       string
	SupportEmail string
}

// Notifier renders the lifecycle templates and hands them to a Sender.
type Notifier struct {
	sender    Sender
	opts      Options
	templates *template.Template
}

// Recipient is the addressee of a notification.
type Recipient struct {
	Email string
	Name  string
}

type baseData struct {
	AppName      string
	AppURL       string
	SupportEmail string
	Name         string
}

type SubscriptionCreatedData struct {
	baseData
	PlanName  string
	PeriodEnd *time.Time
}

type TrialEndingData struct {
	baseData
	DaysLeft int
	TrialEnd time.Time
}

func NewNotifier(sender Sender, opts Options) (*Notifier, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidConfig)
	}
	if opts.AppName == "" {
		opts.AppName = "AskHub"
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("error loading email templates: %w", err)
	}

	return &Notifier{sender: sender, opts: opts, templates: templates}, nil
}

func (n *Notifier) base(to Recipient) baseData {
	return baseData{
		AppName:      n.opts.AppName,
		AppURL:       n.opts.AppURL,
		SupportEmail: n.opts.SupportEmail,
		Name:         to.Name,
	}
}

func (n *Notifier) send(ctx context.Context, to Recipient, subject, templateName string, data any) error {
	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, templateName+".html", data); err != nil {
		return fmt.Errorf("template execution error: %w", err)
	}

	return n.sender.Send(ctx, Message{
		To:      to.Email,
		Subject: subject,
		HTML:    body.String(),
		Tag:     templateName,
	})
}

func (n *Notifier) SendSubscriptionCreated(ctx context.Context, to Recipient, planName string, periodEnd *time.Time) error {
	data := SubscriptionCreatedData{
		baseData:  n.base(to),
		PlanName:  planName,
		PeriodEnd: periodEnd,
	}
	return n.send(ctx, to, fmt.Sprintf("Welcome to %s %s", n.opts.AppName, planName), "subscription_created", data)
}

func (n *Notifier) SendPaymentFailed(ctx context.Context, to Recipient) error {
	return n.send(ctx, to, "Your payment didn't go through", "payment_failed", n.base(to))
}

func (n *Notifier) SendTrialEnding(ctx context.Context, to Recipient, daysLeft int, trialEnd time.Time) error {
	data := TrialEndingData{
		baseData: n.base(to),
		DaysLeft: daysLeft,
		TrialEnd: trialEnd,
	}
	return n.send(ctx, to, fmt.Sprintf("Your trial ends in %d days", daysLeft), "trial_ending", data)
}

func (n *Notifier) SendTrialLastDay(ctx context.Context, to Recipient) error {
	return n.send(ctx, to, "Last day of your free trial", "trial_last_day", n.base(to))
}

func (n *Notifier) SendTrialEnded(ctx context.Context, to Recipient) error {
	return n.send(ctx, to, "Your free trial has ended", "trial_ended", n.base(to))
}

func (n *Notifier) SendSubscriptionExpired(ctx context.Context, to Recipient) error {
	return n.send(ctx, to, "Your subscription has expired", "subscription_expired", n.base(to))
}
