package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"outreachcrm/engine"
	"outreachcrm/models"
	"outreachcrm/utils"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Engine *engine.SequenceEngine
}

func NewSequenceController(db *gorm.DB, logger *log.Logger, eng *engine.SequenceEngine) *SequenceController {
	return &SequenceController{
		DB:     db,
		Logger: logger,
		Engine: eng,
	}
}

type sequenceInput struct {
	Name           string                `json:"name" validate:"required,min=1,max=200"`
	Description    string                `json:"description"`
	TargetIndustry string                `json:"target_industry"`
	TargetPersona  string                `json:"target_persona"`
	Status         models.SequenceStatus `json:"status"`
	Steps          []stepInput           `json:"steps"`
}

type stepInput struct {
	StepOrder       int             `json:"step_order" validate:"required,min=1"`
	StepType        models.StepType `json:"step_type" validate:"required,oneof=email call linkedin task"`
	DelayDays       int             `json:"delay_days" validate:"min=0"`
	TemplateID      *uint           `json:"template_id"`
	SubjectOverride string          `json:"subject_override"`
	TaskDescription string          `json:"task_description"`
}

// GetSequences lists sequences with step and active-enrollment counts.
func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	query := sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var sequences []models.Sequence
	if err := query.Find(&sequences).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequences", err)
	}

	type sequenceSummary struct {
		models.Sequence
		ActiveEnrollments int64 `json:"active_enrollments"`
	}

	summaries := make([]sequenceSummary, 0, len(sequences))
	for _, seq := range sequences {
		var active int64
		sc.DB.Model(&models.Enrollment{}).
			Where("sequence_id = ? AND status = ?", seq.ID, models.EnrollmentStatusActive).
			Count(&active)
		summaries = append(summaries, sequenceSummary{Sequence: seq, ActiveEnrollments: active})
	}

	return c.JSON(utils.SuccessResponse(summaries))
}

// GetSequence returns one sequence with ordered steps.
func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	var sequence models.Sequence
	err := sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).Preload("Steps.Template").First(&sequence, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequence", err)
	}
	return c.JSON(utils.SuccessResponse(sequence))
}

// CreateSequence stores a sequence and its steps in one transaction. Step
// orders must form a contiguous 1..N run.
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	steps := stepsFromInput(input.Steps)
	if err := models.ValidateStepOrder(steps); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid step order", err)
	}

	status := input.Status
	if status == "" {
		status = models.SequenceStatusDraft
	}

	sequence := models.Sequence{
		Name:           input.Name,
		Description:    input.Description,
		TargetIndustry: input.TargetIndustry,
		TargetPersona:  input.TargetPersona,
		Status:         status,
		Steps:          steps,
	}

	if err := sc.DB.Create(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(sequence))
}

// UpdateSequence updates sequence metadata and, when steps are provided,
// replaces the full step list.
func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	var sequence models.Sequence
	err := sc.DB.First(&sequence, c.Params("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch sequence", err)
	}

	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	steps := stepsFromInput(input.Steps)
	if len(steps) > 0 {
		if err := models.ValidateStepOrder(steps); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid step order", err)
		}
	}

	err = sc.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"name":            input.Name,
			"description":     input.Description,
			"target_industry": input.TargetIndustry,
			"target_persona":  input.TargetPersona,
		}
		if input.Status != "" {
			updates["status"] = input.Status
		}
		if err := tx.Model(&sequence).Updates(updates).Error; err != nil {
			return err
		}

		if len(steps) > 0 {
			if err := tx.Where("sequence_id = ?", sequence.ID).Delete(&models.SequenceStep{}).Error; err != nil {
				return err
			}
			for i := range steps {
				steps[i].SequenceID = sequence.ID
			}
			if err := tx.Create(&steps).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update sequence", err)
	}

	return sc.GetSequence(c)
}

// DeleteSequence removes a sequence. Sequences with active enrollments cannot
// be deleted, they must be archived first.
func (sc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	sequenceID := utils.ParseUint(c.Params("id"))

	var active int64
	sc.DB.Model(&models.Enrollment{}).
		Where("sequence_id = ? AND status = ?", sequenceID, models.EnrollmentStatusActive).
		Count(&active)
	if active > 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict,
			"Sequence has active enrollments, archive it instead", nil)
	}

	res := sc.DB.Delete(&models.Sequence{}, sequenceID)
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete sequence", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Sequence deleted",
	})
}

// EnrollContact adds one contact to a sequence. Only active sequences accept
// enrollments and unsubscribed contacts are refused.
func (sc *SequenceController) EnrollContact(c *fiber.Ctx) error {
	var input struct {
		ContactID        uint `json:"contact_id" validate:"required"`
		StartImmediately bool `json:"start_immediately"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	sequenceID := utils.ParseUint(c.Params("id"))
	if err := sc.checkEnrollable(sequenceID, input.ContactID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, err.Error(), nil)
	}

	enrollment, err := sc.Engine.Enroll(input.ContactID, sequenceID, input.StartImmediately)
	switch {
	case errors.Is(err, engine.ErrAlreadyEnrolled):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Contact is already enrolled in this sequence", nil)
	case errors.Is(err, engine.ErrNoFirstStep):
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Sequence has no first step", nil)
	case err != nil:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enroll contact", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(enrollment))
}

// BulkEnroll enrolls many contacts at once, reporting per-contact outcomes.
func (sc *SequenceController) BulkEnroll(c *fiber.Ctx) error {
	var input struct {
		ContactIDs       []uint `json:"contact_ids" validate:"required,min=1"`
		StartImmediately bool   `json:"start_immediately"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	sequenceID := utils.ParseUint(c.Params("id"))

	enrolled := 0
	skipped := 0
	failures := make([]fiber.Map, 0)

	for _, contactID := range input.ContactIDs {
		if err := sc.checkEnrollable(sequenceID, contactID); err != nil {
			skipped++
			failures = append(failures, fiber.Map{"contact_id": contactID, "reason": err.Error()})
			continue
		}

		_, err := sc.Engine.Enroll(contactID, sequenceID, input.StartImmediately)
		switch {
		case errors.Is(err, engine.ErrAlreadyEnrolled):
			skipped++
			failures = append(failures, fiber.Map{"contact_id": contactID, "reason": "already enrolled"})
		case err != nil:
			skipped++
			failures = append(failures, fiber.Map{"contact_id": contactID, "reason": err.Error()})
		default:
			enrolled++
		}
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"enrolled": enrolled,
		"skipped":  skipped,
		"failures": failures,
	}))
}

// GetEnrollments lists enrollments for a sequence.
func (sc *SequenceController) GetEnrollments(c *fiber.Ctx) error {
	query := sc.DB.Preload("Contact").Where("sequence_id = ?", c.Params("id"))
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var enrollments []models.Enrollment
	if err := query.Order("enrolled_at DESC").Find(&enrollments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch enrollments", err)
	}

	type enrollmentView struct {
		models.Enrollment
		ContactName  string `json:"contact_name"`
		ContactEmail string `json:"contact_email"`
	}
	views := make([]enrollmentView, 0, len(enrollments))
	for _, e := range enrollments {
		views = append(views, enrollmentView{
			Enrollment:   e,
			ContactName:  e.Contact.FullName(),
			ContactEmail: e.Contact.Email,
		})
	}

	return c.JSON(utils.SuccessResponse(views))
}

// UnenrollContact removes an enrollment from the active flow.
func (sc *SequenceController) UnenrollContact(c *fiber.Ctx) error {
	enrollmentID := utils.ParseUint(c.Params("enrollmentId"))

	err := sc.Engine.Unenroll(enrollmentID)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Enrollment not found", nil)
	case err != nil:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unenroll contact", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Contact unenrolled",
	})
}

func (sc *SequenceController) checkEnrollable(sequenceID, contactID uint) error {
	var sequence models.Sequence
	if err := sc.DB.First(&sequence, sequenceID).Error; err != nil {
		return errors.New("sequence not found")
	}
	if sequence.Status != models.SequenceStatusActive {
		return errors.New("sequence is not active")
	}

	var contact models.Contact
	if err := sc.DB.First(&contact, contactID).Error; err != nil {
		return errors.New("contact not found")
	}
	if contact.IsUnsubscribed {
		return errors.New("contact has unsubscribed")
	}
	return nil
}

func stepsFromInput(inputs []stepInput) []models.SequenceStep {
	steps := make([]models.SequenceStep, 0, len(inputs))
	for _, in := range inputs {
		steps = append(steps, models.SequenceStep{
			StepOrder:       in.StepOrder,
			StepType:        in.StepType,
			DelayDays:       in.DelayDays,
			TemplateID:      in.TemplateID,
			SubjectOverride: in.SubjectOverride,
			TaskDescription: in.TaskDescription,
		})
	}
	return steps
}
