package controller

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"outreachcrm/hubspot"
	"outreachcrm/models"
	"outreachcrm/utils"
)

type ActivityController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Sync   *hubspot.SyncService
}

func NewActivityController(db *gorm.DB, logger *log.Logger, sync *hubspot.SyncService) *ActivityController {
	return &ActivityController{
		DB:     db,
		Logger: logger,
		Sync:   sync,
	}
}

// GetActivities lists recent activities across all contacts.
func (ac *ActivityController) GetActivities(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}

	query := ac.DB.Model(&models.Activity{}).Preload("Contact")
	if activityType := c.Query("type"); activityType != "" {
		query = query.Where("activity_type = ?", activityType)
	}
	if days := c.QueryInt("days", 0); days > 0 {
		since := time.Now().UTC().AddDate(0, 0, -days)
		query = query.Where("performed_at >= ?", since)
	}

	var activities []models.Activity
	if err := query.Order("performed_at DESC").Limit(limit).Find(&activities).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch activities", err)
	}

	type activityView struct {
		models.Activity
		ContactName  string `json:"contact_name"`
		ContactEmail string `json:"contact_email"`
	}
	views := make([]activityView, 0, len(activities))
	for _, a := range activities {
		views = append(views, activityView{
			Activity:     a,
			ContactName:  a.Contact.FullName(),
			ContactEmail: a.Contact.Email,
		})
	}

	return c.JSON(utils.SuccessResponse(views))
}

// GetContactActivities returns the full activity feed for one contact.
func (ac *ActivityController) GetContactActivities(c *fiber.Ctx) error {
	contactID := utils.ParseUint(c.Params("contactId"))

	var contact models.Contact
	err := ac.DB.First(&contact, contactID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	var activities []models.Activity
	if err := ac.DB.Where("contact_id = ?", contactID).
		Order("performed_at DESC").
		Find(&activities).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch activities", err)
	}

	return c.JSON(utils.SuccessResponse(activities))
}

// CreateActivity records a manual activity (a note, a meeting) for a contact.
func (ac *ActivityController) CreateActivity(c *fiber.Ctx) error {
	var input struct {
		ContactID    uint                `json:"contact_id" validate:"required"`
		ActivityType models.ActivityType `json:"activity_type" validate:"required"`
		Description  string              `json:"description" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var contact models.Contact
	if err := ac.DB.First(&contact, input.ContactID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	activity := models.Activity{
		ContactID:    input.ContactID,
		ActivityType: input.ActivityType,
		Description:  input.Description,
		PerformedAt:  time.Now().UTC(),
		PerformedBy:  "user",
	}
	if err := ac.DB.Create(&activity).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create activity", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(activity))
}

// SyncActivity pushes one activity to HubSpot on demand.
func (ac *ActivityController) SyncActivity(c *fiber.Ctx) error {
	var activity models.Activity
	err := ac.DB.First(&activity, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Activity not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch activity", err)
	}

	var contact models.Contact
	if err := ac.DB.First(&contact, activity.ContactID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	synced, err := ac.Sync.SyncActivity(&activity, &contact)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to sync activity to HubSpot", err)
	}
	if !synced {
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Activity type is not synced to HubSpot",
			"synced":  false,
		})
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"synced":                true,
		"hubspot_engagement_id": activity.HubspotEngagementID,
	}))
}

// SyncPending pushes every unsynced activity to HubSpot.
func (ac *ActivityController) SyncPending(c *fiber.Ctx) error {
	synced, failed, skipped, err := ac.Sync.SyncPendingActivities()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to sync activities", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"synced":  synced,
		"failed":  failed,
		"skipped": skipped,
	}))
}
