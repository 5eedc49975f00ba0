package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"outreachcrm/config"
	"outreachcrm/engine"
	"outreachcrm/enrichment"
	"outreachcrm/hubspot"
	"outreachcrm/middleware"
	"outreachcrm/routes"
	"outreachcrm/sendgrid"
	"outreachcrm/worker"
)

func main() {
	logger := log.New(os.Stdout, "SERVER: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry when a DSN is configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Pick the mail transport: SendGrid when a key is set, SMTP otherwise
	var mailer sendgrid.Mailer
	if config.AppConfig.SendgridAPIKey != "" {
		mailer = sendgrid.NewClient(
			config.AppConfig.SendgridAPIKey,
			config.AppConfig.FromEmail,
			config.AppConfig.FromName,
		)
	} else {
		mailer = sendgrid.NewSMTPMailer(
			config.AppConfig.SMTPHost,
			config.AppConfig.SMTPPort,
			config.AppConfig.SMTPUsername,
			config.AppConfig.SMTPPassword,
			config.AppConfig.FromEmail,
			config.AppConfig.FromName,
		)
	}

	// Initialize services
	sequenceEngine := engine.NewSequenceEngine(config.DB, log.New(os.Stdout, "ENGINE: ", log.LstdFlags))
	hubspotClient := hubspot.NewClient(config.AppConfig.HubspotAccessToken)
	syncService := hubspot.NewSyncService(config.DB, hubspotClient,
		log.New(os.Stdout, "HUBSPOT: ", log.LstdFlags), config.AppConfig.FromEmail)
	enricher := enrichment.NewService(config.DB, enrichment.NewLushaClient(config.AppConfig.LushaAPIKey))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the reply-detection worker when IMAP is configured
	if config.AppConfig.IMAP.Enabled {
		replyWorker := worker.NewReplyWorker(config.DB, sequenceEngine, config.AppConfig.IMAP,
			log.New(os.Stdout, "REPLY: ", log.LstdFlags))
		replyWorker.PollInterval = time.Duration(config.AppConfig.ReplyPollMinutes) * time.Minute
		go replyWorker.Start(ctx)
	}

	// Start the activity sync worker when HubSpot is configured
	if config.AppConfig.HubspotAccessToken != "" {
		syncWorker := worker.NewSyncWorker(config.DB, syncService,
			log.New(os.Stdout, "SYNC: ", log.LstdFlags))
		syncWorker.Interval = time.Duration(config.AppConfig.ActivitySyncMinutes) * time.Minute
		go syncWorker.Start(ctx)
	}

	// Setup routes
	routes.SetupRoutes(app, config.DB, routes.Services{
		Engine:    sequenceEngine,
		Mailer:    mailer,
		Sync:      syncService,
		Enricher:  enricher,
		Signature: config.AppConfig.EmailSignature,
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
