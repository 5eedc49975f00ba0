package controller

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"outreachcrm/engine"
	"outreachcrm/models"
	"outreachcrm/sendgrid"
	"outreachcrm/utils"
)

type DashboardController struct {
	DB        *gorm.DB
	Logger    *log.Logger
	Engine    *engine.SequenceEngine
	Mailer    sendgrid.Mailer
	Signature string
}

func NewDashboardController(db *gorm.DB, logger *log.Logger, eng *engine.SequenceEngine, mailer sendgrid.Mailer, signature string) *DashboardController {
	return &DashboardController{
		DB:        db,
		Logger:    logger,
		Engine:    eng,
		Mailer:    mailer,
		Signature: signature,
	}
}

// GetStats returns the aggregate numbers shown on the dashboard header.
func (dc *DashboardController) GetStats(c *fiber.Ctx) error {
	var totalContacts, tier1, tier2, engaged, meetings int64
	dc.DB.Model(&models.Contact{}).Count(&totalContacts)
	dc.DB.Model(&models.Contact{}).Where("icp_tier = ?", "tier_1").Count(&tier1)
	dc.DB.Model(&models.Contact{}).Where("icp_tier = ?", "tier_2").Count(&tier2)
	dc.DB.Model(&models.Contact{}).Where("status = ?", models.ContactStatusEngaged).Count(&engaged)
	dc.DB.Model(&models.Contact{}).Where("status = ?", models.ContactStatusMeetingBooked).Count(&meetings)

	var activeEnrollments int64
	dc.DB.Model(&models.Enrollment{}).
		Where("status = ?", models.EnrollmentStatusActive).Count(&activeEnrollments)

	weekAgo := time.Now().UTC().AddDate(0, 0, -7)
	var emailsThisWeek, repliesThisWeek, callsThisWeek int64
	dc.DB.Model(&models.Activity{}).
		Where("activity_type = ? AND performed_at >= ?", models.ActivityEmailSent, weekAgo).
		Count(&emailsThisWeek)
	dc.DB.Model(&models.Activity{}).
		Where("activity_type = ? AND performed_at >= ?", models.ActivityEmailReplied, weekAgo).
		Count(&repliesThisWeek)
	dc.DB.Model(&models.Activity{}).
		Where("activity_type IN ? AND performed_at >= ?",
			[]models.ActivityType{models.ActivityCallMade, models.ActivityCallAnswered, models.ActivityCallNoAnswer},
			weekAgo).
		Count(&callsThisWeek)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"total_contacts":     totalContacts,
		"tier_1_contacts":    tier1,
		"tier_2_contacts":    tier2,
		"engaged_contacts":   engaged,
		"meetings_booked":    meetings,
		"active_enrollments": activeEnrollments,
		"emails_this_week":   emailsThisWeek,
		"replies_this_week":  repliesThisWeek,
		"calls_this_week":    callsThisWeek,
	}))
}

// GetTodayActions returns everything due today (and overdue from earlier
// days). An optional date query parameter (YYYY-MM-DD) targets another day.
func (dc *DashboardController) GetTodayActions(c *fiber.Ctx) error {
	targetDate := time.Now().UTC()
	if dateStr := c.Query("date"); dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		}
		targetDate = parsed
	}

	actions, err := dc.Engine.GetDueActions(targetDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch due actions", err)
	}

	return c.JSON(utils.SuccessResponse(actions))
}

// ExecuteEmail sends the email for a due step and advances the enrollment.
// Unsubscribed contacts block the send.
func (dc *DashboardController) ExecuteEmail(c *fiber.Ctx) error {
	enrollmentID := utils.ParseUint(c.Params("enrollmentId"))

	var enrollment models.Enrollment
	err := dc.DB.Preload("Contact").Preload("Sequence").First(&enrollment, enrollmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollment", err)
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Enrollment is not active", nil)
	}

	contact := enrollment.Contact
	if contact.IsUnsubscribed {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Contact has unsubscribed", nil)
	}

	var step models.SequenceStep
	err = dc.DB.Where("sequence_id = ? AND step_order = ?",
		enrollment.SequenceID, enrollment.CurrentStep).First(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Current step no longer exists", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch step", err)
	}
	if step.StepType != models.StepTypeEmail {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Current step is not an email step", nil)
	}
	if step.TemplateID == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Email step has no template", nil)
	}

	var template models.EmailTemplate
	if err := dc.DB.First(&template, *step.TemplateID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Step template no longer exists", nil)
	}

	vars := contact.TemplateVars()
	subject, bodyHTML, bodyText := template.Render(vars)
	if step.SubjectOverride != "" {
		subject = models.RenderText(step.SubjectOverride, vars)
	}
	if bodyText == "" {
		bodyText = sendgrid.HTMLToText(bodyHTML)
	}

	messageID, err := dc.Mailer.Send(sendgrid.Email{
		To:      contact.Email,
		ToName:  contact.FullName(),
		Subject: subject,
		HTML:    sendgrid.WrapHTML(bodyHTML, true, dc.Signature),
		Text:    bodyText,
		CustomArgs: map[string]string{
			"contact_id":    utils.FormatUint(contact.ID),
			"enrollment_id": utils.FormatUint(enrollment.ID),
		},
	})
	if err != nil {
		utils.LogError("sequence_email_send", err, map[string]interface{}{
			"enrollment_id": enrollment.ID,
			"contact_id":    contact.ID,
		})
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to send email", err)
	}

	activity, err := dc.Engine.ExecuteEmailStep(enrollment.ID, messageID)
	if err != nil {
		// The email went out but bookkeeping failed; surface both facts.
		utils.LogError("sequence_email_record", err, map[string]interface{}{
			"enrollment_id": enrollment.ID,
			"message_id":    messageID,
		})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError,
			"Email sent but failed to record the step", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message_id": messageID,
		"activity":   activity,
	}))
}

// ExecuteCall records a call outcome for a due step and advances the
// enrollment.
func (dc *DashboardController) ExecuteCall(c *fiber.Ctx) error {
	enrollmentID := utils.ParseUint(c.Params("enrollmentId"))

	var input struct {
		Outcome string `json:"outcome" validate:"required,oneof=answered no_answer other"`
		Notes   string `json:"notes"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	activity, err := dc.Engine.ExecuteCallStep(enrollmentID, input.Outcome, input.Notes)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	case errors.Is(err, engine.ErrNotActive):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Enrollment is not active", nil)
	case err != nil:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record call", err)
	}

	return c.JSON(utils.SuccessResponse(activity))
}

// SkipStep advances an enrollment without executing the current step.
func (dc *DashboardController) SkipStep(c *fiber.Ctx) error {
	enrollmentID := utils.ParseUint(c.Params("enrollmentId"))

	var enrollment models.Enrollment
	err := dc.DB.First(&enrollment, enrollmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollment", err)
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Enrollment is not active", nil)
	}

	if err := dc.Engine.AdvanceToNextStep(&enrollment); err != nil {
		if errors.Is(err, engine.ErrConcurrentUpdate) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "Enrollment was modified concurrently", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to skip step", err)
	}

	return c.JSON(utils.SuccessResponse(enrollment))
}

// MarkReplied stops the sequence for a contact that answered and records the
// reply activity.
func (dc *DashboardController) MarkReplied(c *fiber.Ctx) error {
	enrollmentID := utils.ParseUint(c.Params("enrollmentId"))

	var enrollment models.Enrollment
	err := dc.DB.First(&enrollment, enrollmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollment", err)
	}

	if err := dc.Engine.MarkReplied(enrollmentID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to mark replied", err)
	}

	// Only log the reply once: a second call on a terminal enrollment is a
	// no-op and must not duplicate the activity.
	if !enrollment.Status.Terminal() {
		activity := models.Activity{
			ContactID:    enrollment.ContactID,
			ActivityType: models.ActivityEmailReplied,
			Description:  "Contact replied to sequence email",
			SequenceID:   &enrollment.SequenceID,
			SequenceStep: utils.Pointer(enrollment.CurrentStep),
			PerformedAt:  time.Now().UTC(),
			PerformedBy:  "user",
		}
		if err := dc.DB.Create(&activity).Error; err != nil {
			utils.LogError("reply_activity_create", err, map[string]interface{}{
				"enrollment_id": enrollmentID,
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Enrollment marked as replied",
	})
}
