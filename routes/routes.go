package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"outreachcrm/engine"
	"outreachcrm/enrichment"
	"outreachcrm/hubspot"
	"outreachcrm/middleware"
	"outreachcrm/sendgrid"

	controller "outreachcrm/controllers"
)

// Services holds the shared dependencies the route handlers need.
type Services struct {
	Engine    *engine.SequenceEngine
	Mailer    sendgrid.Mailer
	Sync      *hubspot.SyncService
	Enricher  *enrichment.Service
	Signature string
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, svc Services) {
	contactController := controller.NewContactController(db, log.New(os.Stdout, "CONTACT: ", log.LstdFlags))
	sequenceController := controller.NewSequenceController(db, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags), svc.Engine)
	templateController := controller.NewTemplateController(db, log.New(os.Stdout, "TEMPLATE: ", log.LstdFlags))
	activityController := controller.NewActivityController(db, log.New(os.Stdout, "ACTIVITY: ", log.LstdFlags), svc.Sync)
	dashboardController := controller.NewDashboardController(db, log.New(os.Stdout, "DASHBOARD: ", log.LstdFlags), svc.Engine, svc.Mailer, svc.Signature)
	hubspotController := controller.NewHubspotController(db, log.New(os.Stdout, "HUBSPOT: ", log.LstdFlags), svc.Sync)
	enrichmentController := controller.NewEnrichmentController(db, log.New(os.Stdout, "ENRICH: ", log.LstdFlags), svc.Enricher)

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Contact routes
	contact := api.Group("/contacts")
	contact.Get("/", contactController.GetContacts)
	contact.Post("/", contactController.CreateContact)
	contact.Get("/:id", contactController.GetContact)
	contact.Put("/:id", contactController.UpdateContact)
	contact.Delete("/:id", contactController.DeleteContact)
	contact.Put("/:id/status", contactController.UpdateStatus)
	contact.Post("/:id/unsubscribe", contactController.Unsubscribe)

	// Sequence routes
	sequence := api.Group("/sequences")
	sequence.Get("/", sequenceController.GetSequences)
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Put("/:id", sequenceController.UpdateSequence)
	sequence.Delete("/:id", sequenceController.DeleteSequence)
	sequence.Post("/:id/enroll", sequenceController.EnrollContact)
	sequence.Post("/:id/bulk-enroll", sequenceController.BulkEnroll)
	sequence.Get("/:id/enrollments", sequenceController.GetEnrollments)
	sequence.Delete("/enrollments/:enrollmentId", sequenceController.UnenrollContact)

	// Template routes
	template := api.Group("/templates")
	template.Get("/variables", templateController.GetVariables)
	template.Get("/", templateController.GetTemplates)
	template.Post("/", templateController.CreateTemplate)
	template.Get("/:id", templateController.GetTemplate)
	template.Put("/:id", templateController.UpdateTemplate)
	template.Delete("/:id", templateController.DeleteTemplate)
	template.Get("/:id/preview", templateController.PreviewTemplate)
	template.Post("/:id/duplicate", templateController.DuplicateTemplate)

	// Activity routes
	activity := api.Group("/activities")
	activity.Get("/", activityController.GetActivities)
	activity.Post("/", activityController.CreateActivity)
	activity.Get("/contact/:contactId", activityController.GetContactActivities)
	activity.Post("/:id/sync", activityController.SyncActivity)
	activity.Post("/sync-pending", activityController.SyncPending)

	// Dashboard routes (the daily workflow surface)
	dashboard := api.Group("/dashboard")
	dashboard.Get("/stats", dashboardController.GetStats)
	dashboard.Get("/today", dashboardController.GetTodayActions)
	dashboard.Post("/execute-email/:enrollmentId", dashboardController.ExecuteEmail)
	dashboard.Post("/execute-call/:enrollmentId", dashboardController.ExecuteCall)
	dashboard.Post("/skip/:enrollmentId", dashboardController.SkipStep)
	dashboard.Post("/replied/:enrollmentId", dashboardController.MarkReplied)

	// HubSpot routes with provider rate limiting
	hub := api.Group("/hubspot", middleware.ProviderRateLimiter())
	hub.Post("/import", hubspotController.ImportContacts)
	hub.Post("/push/:id", hubspotController.PushContact)
	hub.Get("/status", hubspotController.GetSyncStatus)

	// WebSocket route for import progress
	app.Get("/api/v1/hubspot/import/progress", websocket.New(func(c *websocket.Conn) {
		hubspotController.HandleImportProgressWS(c)
	}))

	// Enrichment routes with provider rate limiting
	enrich := api.Group("/enrichment", middleware.ProviderRateLimiter())
	enrich.Post("/contact/:id", enrichmentController.EnrichContact)
	enrich.Post("/batch", enrichmentController.EnrichBatch)

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, svc Services) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAPIRoutes(app, db, svc)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
