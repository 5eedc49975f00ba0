package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"outreachcrm/hubspot"
	"outreachcrm/models"
	"outreachcrm/utils"
)

type HubspotController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Sync   *hubspot.SyncService
}

func NewHubspotController(db *gorm.DB, logger *log.Logger, sync *hubspot.SyncService) *HubspotController {
	return &HubspotController{
		DB:     db,
		Logger: logger,
		Sync:   sync,
	}
}

// ImportContacts pulls the full HubSpot contact list and upserts it locally.
// This is a blocking call; the websocket feed carries progress for clients
// that want it.
func (hc *HubspotController) ImportContacts(c *fiber.Ctx) error {
	pageSize := c.QueryInt("page_size", 100)

	stats, err := hc.Sync.ImportContacts(pageSize)
	if err != nil {
		utils.LogError("hubspot_import", err, nil)
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "HubSpot import failed", err)
	}

	utils.LogEvent("hubspot_import_completed", map[string]interface{}{
		"created": stats.Created,
		"updated": stats.Updated,
		"skipped": stats.Skipped,
		"errors":  stats.Errors,
	})

	return c.JSON(utils.SuccessResponse(stats))
}

// PushContact sends one local contact to HubSpot.
func (hc *HubspotController) PushContact(c *fiber.Ctx) error {
	var contact models.Contact
	err := hc.DB.First(&contact, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	if err := hc.Sync.PushContact(&contact); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to push contact to HubSpot", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"hubspot_id":        contact.HubspotID,
		"hubspot_synced_at": contact.HubspotSyncedAt,
	}))
}

// GetSyncStatus summarizes how much of the local data is linked to HubSpot.
func (hc *HubspotController) GetSyncStatus(c *fiber.Ctx) error {
	var totalContacts, linkedContacts, pendingActivities int64
	hc.DB.Model(&models.Contact{}).Count(&totalContacts)
	hc.DB.Model(&models.Contact{}).Where("hubspot_id IS NOT NULL").Count(&linkedContacts)
	hc.DB.Model(&models.Activity{}).Where("hubspot_synced = ?", false).Count(&pendingActivities)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"total_contacts":     totalContacts,
		"linked_contacts":    linkedContacts,
		"unlinked_contacts":  totalContacts - linkedContacts,
		"pending_activities": pendingActivities,
	}))
}

// HandleImportProgressWS streams import progress events to the client until
// the import completes or the client disconnects.
func (hc *HubspotController) HandleImportProgressWS(c *websocket.Conn) {
	defer c.Close()

	events := hc.Sync.Progress.Subscribe()
	defer hc.Sync.Progress.Unsubscribe(events)

	for event := range events {
		if err := c.WriteJSON(event); err != nil {
			log.Printf("Error writing JSON: %v", err)
			return
		}
		if event.Stage == "completed" {
			return
		}
	}
}
