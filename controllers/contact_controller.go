package controller

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"outreachcrm/icp"
	"outreachcrm/models"
	"outreachcrm/utils"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewContactController(db *gorm.DB, logger *log.Logger) *ContactController {
	return &ContactController{
		DB:     db,
		Logger: logger,
	}
}

type contactInput struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`

	Company     string `json:"company"`
	JobTitle    string `json:"job_title"`
	LinkedinURL string `json:"linkedin_url"`

	Industry models.Industry `json:"industry"`
	Persona  models.Persona  `json:"persona"`

	CompanySegment   icp.Segment `json:"company_segment"`
	ISCCCertified    bool        `json:"iscc_certified"`
	ISCCInProgress   bool        `json:"iscc_in_progress"`
	MultiSitesEU     bool        `json:"multi_sites_eu"`
	EPRPPWRExposure  bool        `json:"epr_ppwr_exposure"`
	EmployeesOver100 bool        `json:"employees_over_100"`
	VisibleITBudget  bool        `json:"visible_it_budget"`

	Notes string `json:"notes"`
}

// GetContacts lists contacts with pagination and optional filters.
func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := cc.DB.Model(&models.Contact{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if industry := c.Query("industry"); industry != "" {
		query = query.Where("industry = ?", industry)
	}
	if persona := c.Query("persona"); persona != "" {
		query = query.Where("persona = ?", persona)
	}
	if tier := c.Query("tier"); tier != "" {
		query = query.Where("icp_tier = ?", tier)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(company) LIKE ?",
			pattern, pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count contacts", err)
	}

	var contacts []models.Contact
	if err := query.
		Order("icp_score DESC, id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&contacts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  contacts,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetContact returns one contact with its activity history and enrollments.
func (cc *ContactController) GetContact(c *fiber.Ctx) error {
	var contact models.Contact
	err := cc.DB.
		Preload("Activities", func(db *gorm.DB) *gorm.DB {
			return db.Order("performed_at DESC").Limit(50)
		}).
		Preload("Enrollments").
		First(&contact, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"contact":        contact,
		"priority_label": contact.PriorityLabel(),
	}))
}

// CreateContact validates and stores a new contact, scoring it immediately.
func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	var input contactInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
	}

	contact := cc.contactFromInput(input)
	contact.RefreshScore()

	if err := cc.DB.Create(&contact).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate") {
			return utils.ErrorResponse(c, fiber.StatusConflict, "A contact with this email already exists", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create contact", err)
	}

	utils.LogEvent("contact_created", map[string]interface{}{
		"contact_id": contact.ID,
		"icp_tier":   contact.ICPTier,
	})

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(contact))
}

// UpdateContact applies changes and re-scores when a criteria field moved.
func (cc *ContactController) UpdateContact(c *fiber.Ctx) error {
	var contact models.Contact
	err := cc.DB.First(&contact, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	var input contactInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
	}

	updated := cc.contactFromInput(input)
	updated.ID = contact.ID
	updated.CreatedAt = contact.CreatedAt
	updated.HubspotID = contact.HubspotID
	updated.HubspotSyncedAt = contact.HubspotSyncedAt
	updated.Status = contact.Status
	updated.EmailsSent = contact.EmailsSent
	updated.EmailsOpened = contact.EmailsOpened
	updated.EmailsClicked = contact.EmailsClicked
	updated.LastContactedAt = contact.LastContactedAt
	updated.LastRepliedAt = contact.LastRepliedAt
	updated.IsUnsubscribed = contact.IsUnsubscribed
	updated.CompanySize = contact.CompanySize
	updated.CompanyRevenue = contact.CompanyRevenue
	updated.CompanyCountry = contact.CompanyCountry
	updated.CompanyWebsite = contact.CompanyWebsite
	updated.RefreshScore()

	if err := cc.DB.Save(&updated).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update contact", err)
	}

	return c.JSON(utils.SuccessResponse(updated))
}

// UpdateStatus moves a contact through the outreach state machine and logs a
// status_changed activity.
func (cc *ContactController) UpdateStatus(c *fiber.Ctx) error {
	var input struct {
		Status models.ContactStatus `json:"status" validate:"required,oneof=new contacted engaged qualified meeting_booked not_interested bounced unsubscribed"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var contact models.Contact
	err := cc.DB.First(&contact, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	oldStatus := contact.Status
	if oldStatus == input.Status {
		return c.JSON(utils.SuccessResponse(contact))
	}

	err = cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&contact).Update("status", input.Status).Error; err != nil {
			return err
		}
		return tx.Create(&models.Activity{
			ContactID:    contact.ID,
			ActivityType: models.ActivityStatusChanged,
			Description:  "Status changed from " + string(oldStatus) + " to " + string(input.Status),
			PerformedAt:  time.Now().UTC(),
			PerformedBy:  "user",
		}).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update status", err)
	}

	contact.Status = input.Status
	return c.JSON(utils.SuccessResponse(contact))
}

// Unsubscribe flags the contact and terminates every active enrollment.
func (cc *ContactController) Unsubscribe(c *fiber.Ctx) error {
	var contact models.Contact
	err := cc.DB.First(&contact, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	now := time.Now().UTC()
	err = cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&contact).Updates(map[string]interface{}{
			"is_unsubscribed": true,
			"status":          models.ContactStatusUnsubscribed,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Enrollment{}).
			Where("contact_id = ? AND status = ?", contact.ID, models.EnrollmentStatusActive).
			Updates(map[string]interface{}{
				"status":       models.EnrollmentStatusUnsubscribed,
				"completed_at": now,
				"next_step_at": nil,
			}).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unsubscribe contact", err)
	}

	utils.LogEvent("contact_unsubscribed", map[string]interface{}{
		"contact_id": contact.ID,
	})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Contact unsubscribed and removed from active sequences",
	})
}

// DeleteContact soft-deletes a contact.
func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	res := cc.DB.Delete(&models.Contact{}, c.Params("id"))
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete contact", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Contact deleted",
	})
}

func (cc *ContactController) contactFromInput(input contactInput) models.Contact {
	industry := input.Industry
	if industry == "" {
		industry = models.IndustryOther
	}
	persona := input.Persona
	if persona == "" {
		persona = models.PersonaOther
	}
	segment := input.CompanySegment
	if segment == "" {
		segment = icp.SegmentOther
	}

	return models.Contact{
		Email:       strings.ToLower(strings.TrimSpace(input.Email)),
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Phone:       input.Phone,
		Company:     input.Company,
		JobTitle:    input.JobTitle,
		LinkedinURL: input.LinkedinURL,
		Industry:    industry,
		Persona:     persona,
		Criteria: icp.Criteria{
			CompanySegment:   segment,
			ISCCCertified:    input.ISCCCertified,
			ISCCInProgress:   input.ISCCInProgress,
			MultiSitesEU:     input.MultiSitesEU,
			EPRPPWRExposure:  input.EPRPPWRExposure,
			EmployeesOver100: input.EmployeesOver100,
			VisibleITBudget:  input.VisibleITBudget,
		},
		Notes: input.Notes,
	}
}
