package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"askhub_backend/internal/app"
	"askhub_backend/internal/controller"
	"askhub_backend/internal/middleware"
	"askhub_backend/pkg/config"
	"askhub_backend/pkg/cron"
	"askhub_backend/pkg/logger"
	"askhub_backend/pkg/seed"
	"askhub_backend/pkg/utils/jwt"
)

func setupRoutes(fiberApp *fiber.App, a *app.App, tokens *jwt.Manager) {
	fiberApp.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := a.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	controller.SetupRoutes(fiberApp, middleware.Protected(tokens),
		controller.NewVoteController(a.Votes),
		controller.NewSubscriptionController(a.Subscriptions, a.Config.Server.FrontendURL),
	)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{})
		bootLog.Fatal().Err(err).Msg("could not load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not start application")
	}
	defer a.Close()

	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTL)

	if cfg.Server.SeedDemo {
		seedDemo(a, tokens, log)
	}

	scheduler := cron.NewScheduler(logger.Component(log, "cron"))
	for _, job := range cron.SweepJobs(a.Subscriptions, cfg.Cron.TrialSweep, cfg.Cron.SubscriptionSweep) {
		if err := scheduler.Add(job); err != nil {
			log.Fatal().Err(err).Msg("could not schedule sweep")
		}
	}
	scheduler.Start()

	fiberApp := fiber.New(fiber.Config{
		AppName:      "askhub",
		ErrorHandler: controller.ErrorHandler(logger.Component(log, "http")),
	})

	fiberApp.Use(recover.New())
	fiberApp.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	fiberApp.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.FrontendURL,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	setupRoutes(fiberApp, a, tokens)

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server is running")
		if err := fiberApp.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	scheduler.Stop(ctx)
}

func seedDemo(a *app.App, tokens *jwt.Manager, log zerolog.Logger) {
	demo, err := seed.SeedDemoData(a.DB, logger.Component(log, "seed"))
	if err != nil {
		log.Error().Err(err).Msg("could not seed demo data")
		return
	}

	token, err := tokens.GenerateToken(demo.User.ID, demo.User.Email, demo.User.Username)
	if err != nil {
		log.Error().Err(err).Msg("could not sign demo token")
		return
	}
	log.Info().Str("token", token).Msg("demo bearer token")
}
