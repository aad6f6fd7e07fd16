package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"askhub_backend/internal/model"
	"askhub_backend/internal/repository"
	"askhub_backend/internal/service/subscription"
	"askhub_backend/internal/service/vote"
	"askhub_backend/pkg/billing"
	"askhub_backend/pkg/config"
	"askhub_backend/pkg/database"
	"askhub_backend/pkg/email"
	"askhub_backend/pkg/logger"
	"askhub_backend/pkg/metrics"
	"askhub_backend/pkg/pricing"
)

// App holds the services shared by the API server and the sweep CLI.
type App struct {
	Config        *config.Config
	Log           zerolog.Logger
	DB            *gorm.DB
	Registry      *prometheus.Registry
	Metrics       *metrics.Metrics
	Votes         *vote.Reconciler
	Subscriptions *subscription.Manager
}

// Models lists every table the application owns.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Question{},
		&model.Answer{},
		&model.Vote{},
		&model.Subscription{},
		&model.BillingEvent{},
	}
}

// New connects to the database, runs migrations and wires the services.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	db, err := database.Open(database.Options{
		DSN:          cfg.Database.URL,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		Logger:       logger.Component(log, "database"),
	})
	if err != nil {
		return nil, err
	}
	if err := database.MigrateDatabase(db, log, Models()...); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	catalog, err := pricing.Load(cfg.Billing.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load pricing catalog: %w", err)
	}

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		return nil, err
	}

	gateway := billing.NewStripeGateway(billing.StripeOptions{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Timeout:       cfg.Stripe.Timeout,
		MaxRetries:    cfg.Stripe.MaxRetries,
		Logger:        logger.Component(log, "stripe"),
		Metrics:       m,
	})

	tx := database.NewTransactor(db)
	users := repository.NewUserRepository(db)

	votes := vote.NewReconciler(
		repository.NewVoteRepository(db),
		repository.NewQuestionRepository(db),
		repository.NewAnswerRepository(db),
		tx, m, logger.Component(log, "votes"),
	)

	subs := subscription.NewManager(subscription.Deps{
		Users:    users,
		Store:    repository.NewSubscriptionRepository(db),
		Events:   repository.NewBillingEventRepository(db),
		Gateway:  gateway,
		Notifier: notifier,
		Catalog:  catalog,
		Tx:       tx,
		Metrics:  m,
		Logger:   logger.Component(log, "subscriptions"),
	}, subscription.Config{
		TrialDays: cfg.Billing.TrialDays,
		Grace:     cfg.Billing.GracePeriod,
	})

	return &App{
		Config:        cfg,
		Log:           log,
		DB:            db,
		Registry:      registry,
		Metrics:       m,
		Votes:         votes,
		Subscriptions: subs,
	}, nil
}

// newNotifier sends through Postmark when a server token is configured and
// only logs messages otherwise.
func newNotifier(cfg *config.Config, log zerolog.Logger) (*email.Notifier, error) {
	var sender email.Sender
	if cfg.Email.PostmarkServerToken != "" {
		pm, err := email.NewPostmarkSender(email.PostmarkConfig{
			ServerToken:  cfg.Email.PostmarkServerToken,
			AccountToken: cfg.Email.PostmarkAccountToken,
			From:         cfg.Email.From,
			ReplyTo:      cfg.Email.SupportEmail,
		})
		if err != nil {
			return nil, err
		}
		sender = pm
	} else {
		log.Warn().Msg("POSTMARK_SERVER_TOKEN not set, emails will only be logged")
		sender = email.NewLogSender(logger.Component(log, "email"))
	}

	return email.NewNotifier(sender, email.Options{
		AppName:      "AskHub",
		AppURL:       cfg.Server.FrontendURL,
		SupportEmail: cfg.Email.SupportEmail,
	})
}

// Close releases the database pool.
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
