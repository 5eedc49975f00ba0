package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"outreachcrm/models"
	"outreachcrm/utils"
)

type TemplateController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTemplateController(db *gorm.DB, logger *log.Logger) *TemplateController {
	return &TemplateController{
		DB:     db,
		Logger: logger,
	}
}

type templateInput struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description"`

	Subject  string `json:"subject" validate:"required"`
	BodyHTML string `json:"body_html" validate:"required"`
	BodyText string `json:"body_text"`

	Category       string `json:"category"`
	TargetPersona  string `json:"target_persona"`
	TargetIndustry string `json:"target_industry"`

	IsActive *bool `json:"is_active"`
}

// sampleVars is used for previews when no contact is given.
var sampleVars = map[string]string{
	"firstName": "Marie",
	"lastName":  "Dupont",
	"fullName":  "Marie Dupont",
	"email":     "marie.dupont@example.com",
	"company":   "Example Recycling SAS",
	"jobTitle":  "Sustainability Manager",
	"industry":  "chemical_recycling",
}

// GetTemplates lists templates, optionally filtered by category or activity.
func (tc *TemplateController) GetTemplates(c *fiber.Ctx) error {
	query := tc.DB.Model(&models.EmailTemplate{})
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if c.Query("active") == "true" {
		query = query.Where("is_active = ?", true)
	}

	var templates []models.EmailTemplate
	if err := query.Order("name ASC").Find(&templates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch templates", err)
	}
	return c.JSON(utils.SuccessResponse(templates))
}

// GetTemplate returns one template.
func (tc *TemplateController) GetTemplate(c *fiber.Ctx) error {
	var template models.EmailTemplate
	err := tc.DB.First(&template, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch template", err)
	}
	return c.JSON(utils.SuccessResponse(template))
}

// CreateTemplate stores a new email template.
func (tc *TemplateController) CreateTemplate(c *fiber.Ctx) error {
	var input templateInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	template := models.EmailTemplate{
		Name:           input.Name,
		Description:    input.Description,
		Subject:        input.Subject,
		BodyHTML:       input.BodyHTML,
		BodyText:       input.BodyText,
		Category:       input.Category,
		TargetPersona:  input.TargetPersona,
		TargetIndustry: input.TargetIndustry,
		IsActive:       true,
	}
	if input.IsActive != nil {
		template.IsActive = *input.IsActive
	}

	if err := tc.DB.Create(&template).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create template", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(template))
}

// UpdateTemplate applies changes to an existing template.
func (tc *TemplateController) UpdateTemplate(c *fiber.Ctx) error {
	var template models.EmailTemplate
	err := tc.DB.First(&template, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch template", err)
	}

	var input templateInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updates := map[string]interface{}{
		"name":            input.Name,
		"description":     input.Description,
		"subject":         input.Subject,
		"body_html":       input.BodyHTML,
		"body_text":       input.BodyText,
		"category":        input.Category,
		"target_persona":  input.TargetPersona,
		"target_industry": input.TargetIndustry,
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if err := tc.DB.Model(&template).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update template", err)
	}
	return c.JSON(utils.SuccessResponse(template))
}

// DeleteTemplate removes a template unless a sequence step still uses it.
func (tc *TemplateController) DeleteTemplate(c *fiber.Ctx) error {
	templateID := utils.ParseUint(c.Params("id"))

	var inUse int64
	tc.DB.Model(&models.SequenceStep{}).Where("template_id = ?", templateID).Count(&inUse)
	if inUse > 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict,
			"Template is used by sequence steps and cannot be deleted", nil)
	}

	res := tc.DB.Delete(&models.EmailTemplate{}, templateID)
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete template", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Template deleted",
	})
}

// GetVariables lists the supported placeholder names.
func (tc *TemplateController) GetVariables(c *fiber.Ctx) error {
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"variables": models.TemplateVariables(),
	}))
}

// PreviewTemplate renders a template against a real contact's data when
// contact_id is given, otherwise against sample values. Unknown placeholders
// stay visible in the output.
func (tc *TemplateController) PreviewTemplate(c *fiber.Ctx) error {
	var template models.EmailTemplate
	err := tc.DB.First(&template, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch template", err)
	}

	vars := sampleVars
	if contactID := c.Query("contact_id"); contactID != "" {
		var contact models.Contact
		if err := tc.DB.First(&contact, contactID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
		}
		vars = contact.TemplateVars()
	}

	subject, bodyHTML, bodyText := template.Render(vars)
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"subject":   subject,
		"body_html": bodyHTML,
		"body_text": bodyText,
	}))
}

// DuplicateTemplate clones a template under a "(Copy)" name.
func (tc *TemplateController) DuplicateTemplate(c *fiber.Ctx) error {
	var template models.EmailTemplate
	err := tc.DB.First(&template, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Template not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch template", err)
	}

	clone := template
	clone.Model = gorm.Model{}
	clone.Name = template.Name + " (Copy)"

	if err := tc.DB.Create(&clone).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to duplicate template", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(clone))
}
