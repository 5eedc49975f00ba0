package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"outreachcrm/enrichment"
	"outreachcrm/models"
	"outreachcrm/utils"
)

type EnrichmentController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Enricher *enrichment.Service
}

func NewEnrichmentController(db *gorm.DB, logger *log.Logger, enricher *enrichment.Service) *EnrichmentController {
	return &EnrichmentController{
		DB:       db,
		Logger:   logger,
		Enricher: enricher,
	}
}

// EnrichContact runs a Lusha lookup for one contact and re-scores it.
func (ec *EnrichmentController) EnrichContact(c *fiber.Ctx) error {
	var contact models.Contact
	err := ec.DB.First(&contact, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	err = ec.Enricher.EnrichContact(&contact)
	if errors.Is(err, enrichment.ErrNoData) {
		return c.JSON(fiber.Map{
			"success": true,
			"message": "No enrichment data found for this contact",
			"contact": contact,
		})
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Enrichment failed", err)
	}

	return c.JSON(utils.SuccessResponse(contact))
}

// EnrichBatch enriches a list of contacts, reporting per-contact outcomes.
func (ec *EnrichmentController) EnrichBatch(c *fiber.Ctx) error {
	var input struct {
		ContactIDs []uint `json:"contact_ids" validate:"required,min=1,max=100"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	result, err := ec.Enricher.EnrichBatch(input.ContactIDs)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Batch enrichment failed", err)
	}

	return c.JSON(utils.SuccessResponse(result))
}
