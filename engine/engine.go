package engine

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"outreachcrm/models"
	"outreachcrm/utils"
)

// subjectPreviewLen caps the rendered subject preview in due-action listings.
const subjectPreviewLen = 100

// SequenceEngine owns the enrollment lifecycle: enrolling contacts, advancing
// them through steps, and answering the "what is due today" query.
//
// Every read-then-write path runs inside a transaction with an optimistic
// predicate on (status, current_step), so two requests executing the same due
// action cannot double-advance an enrollment.
type SequenceEngine struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceEngine(db *gorm.DB, logger *log.Logger) *SequenceEngine {
	return &SequenceEngine{
		DB:     db,
		Logger: logger,
	}
}

// Enroll adds a contact to a sequence. It fails with ErrAlreadyEnrolled when
// an active enrollment for the pair exists, and with ErrNoFirstStep when the
// sequence has no step at order 1. With startImmediately the first step is
// due right away, otherwise it is offset by the first step's delay.
func (se *SequenceEngine) Enroll(contactID, sequenceID uint, startImmediately bool) (*models.Enrollment, error) {
	var enrollment models.Enrollment

	err := se.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.Enrollment
		err := tx.Where("contact_id = ? AND sequence_id = ? AND status = ?",
			contactID, sequenceID, models.EnrollmentStatusActive).First(&existing).Error
		if err == nil {
			return ErrAlreadyEnrolled
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var firstStep models.SequenceStep
		err = tx.Where("sequence_id = ? AND step_order = ?", sequenceID, 1).First(&firstStep).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoFirstStep
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		nextStepAt := now
		if !startImmediately {
			nextStepAt = now.AddDate(0, 0, firstStep.DelayDays)
		}

		enrollment = models.Enrollment{
			ContactID:   contactID,
			SequenceID:  sequenceID,
			CurrentStep: 1,
			Status:      models.EnrollmentStatusActive,
			EnrolledAt:  now,
			NextStepAt:  &nextStepAt,
		}
		return tx.Create(&enrollment).Error
	})
	if err != nil {
		return nil, err
	}

	return &enrollment, nil
}

// Unenroll marks an enrollment completed. Calling it on an enrollment that
// already reached a terminal state is a no-op: the original completion
// timestamp is preserved.
func (se *SequenceEngine) Unenroll(enrollmentID uint) error {
	return se.DB.Transaction(func(tx *gorm.DB) error {
		var enrollment models.Enrollment
		if err := tx.First(&enrollment, enrollmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("enrollment %d: %w", enrollmentID, ErrNotFound)
			}
			return err
		}

		if enrollment.Status.Terminal() {
			return nil
		}

		res := tx.Model(&models.Enrollment{}).
			Where("id = ? AND status = ?", enrollment.ID, enrollment.Status).
			Updates(map[string]interface{}{
				"status":       models.EnrollmentStatusCompleted,
				"completed_at": time.Now().UTC(),
				"next_step_at": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}
		return nil
	})
}

// AdvanceToNextStep moves the enrollment to the step at order current+1. When
// no such step exists the enrollment is completed and next_step_at cleared.
// This is the sole engine of forward progress; it runs after every executed
// step and on explicit skips.
func (se *SequenceEngine) AdvanceToNextStep(enrollment *models.Enrollment) error {
	return se.DB.Transaction(func(tx *gorm.DB) error {
		return se.advance(tx, enrollment)
	})
}

func (se *SequenceEngine) advance(tx *gorm.DB, enrollment *models.Enrollment) error {
	var nextStep models.SequenceStep
	err := tx.Where("sequence_id = ? AND step_order = ?",
		enrollment.SequenceID, enrollment.CurrentStep+1).First(&nextStep).Error

	now := time.Now().UTC()

	if errors.Is(err, gorm.ErrRecordNotFound) {
		res := tx.Model(&models.Enrollment{}).
			Where("id = ? AND status = ? AND current_step = ?",
				enrollment.ID, models.EnrollmentStatusActive, enrollment.CurrentStep).
			Updates(map[string]interface{}{
				"status":       models.EnrollmentStatusCompleted,
				"completed_at": now,
				"next_step_at": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}
		enrollment.Status = models.EnrollmentStatusCompleted
		enrollment.CompletedAt = utils.Pointer(now)
		enrollment.NextStepAt = nil
		return nil
	}
	if err != nil {
		return err
	}

	nextAt := now.AddDate(0, 0, nextStep.DelayDays)
	res := tx.Model(&models.Enrollment{}).
		Where("id = ? AND status = ? AND current_step = ?",
			enrollment.ID, models.EnrollmentStatusActive, enrollment.CurrentStep).
		Updates(map[string]interface{}{
			"current_step": nextStep.StepOrder,
			"next_step_at": nextAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	enrollment.CurrentStep = nextStep.StepOrder
	enrollment.NextStepAt = utils.Pointer(nextAt)
	return nil
}

// MarkReplied stops the sequence for a contact that answered. The enrollment
// transitions to the terminal replied state and the contact becomes engaged
// with a reply timestamp. Already-terminal enrollments are left untouched.
func (se *SequenceEngine) MarkReplied(enrollmentID uint) error {
	return se.DB.Transaction(func(tx *gorm.DB) error {
		var enrollment models.Enrollment
		if err := tx.First(&enrollment, enrollmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("enrollment %d: %w", enrollmentID, ErrNotFound)
			}
			return err
		}

		if enrollment.Status.Terminal() {
			return nil
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Enrollment{}).
			Where("id = ? AND status = ?", enrollment.ID, enrollment.Status).
			Updates(map[string]interface{}{
				"status":       models.EnrollmentStatusReplied,
				"completed_at": now,
				"next_step_at": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}

		return tx.Model(&models.Contact{}).
			Where("id = ?", enrollment.ContactID).
			Updates(map[string]interface{}{
				"status":          models.ContactStatusEngaged,
				"last_replied_at": now,
			}).Error
	})
}

// DueAction is one enrollment whose current step is due or overdue.
type DueAction struct {
	EnrollmentID   uint            `json:"enrollment_id"`
	ContactID      uint            `json:"contact_id"`
	ContactName    string          `json:"contact_name"`
	ContactEmail   string          `json:"contact_email"`
	ContactCompany string          `json:"contact_company,omitempty"`
	SequenceID     uint            `json:"sequence_id"`
	SequenceName   string          `json:"sequence_name"`
	StepNumber     int             `json:"step_number"`
	StepType       models.StepType `json:"step_type"`

	// Email steps
	TemplateID     *uint  `json:"template_id,omitempty"`
	TemplateName   string `json:"template_name,omitempty"`
	SubjectPreview string `json:"subject_preview,omitempty"`

	// Call/task steps
	TaskDescription string `json:"task_description,omitempty"`

	ScheduledAt time.Time `json:"scheduled_at"`
}

// DueActions is the full day worth of work, ordered earliest-due first.
type DueActions struct {
	Date         string      `json:"date"`
	TotalActions int         `json:"total_actions"`
	EmailActions int         `json:"email_actions"`
	CallActions  int         `json:"call_actions"`
	OtherActions int         `json:"other_actions"`
	Actions      []DueAction `json:"actions"`
}

// GetDueActions returns every active enrollment whose next step is due on or
// before the end of targetDate. Overdue actions from earlier days stay listed
// until acted on. Results come back sorted ascending by next_step_at with
// enrollment id as the stable tie-breaker.
func (se *SequenceEngine) GetDueActions(targetDate time.Time) (*DueActions, error) {
	endOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(),
		23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)

	var enrollments []models.Enrollment
	err := se.DB.
		Preload("Contact").
		Preload("Sequence").
		Where("status = ? AND next_step_at <= ?", models.EnrollmentStatusActive, endOfDay).
		Order("next_step_at ASC, id ASC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}

	result := &DueActions{
		Date:    targetDate.Format("2006-01-02"),
		Actions: make([]DueAction, 0, len(enrollments)),
	}

	for _, enrollment := range enrollments {
		var step models.SequenceStep
		err := se.DB.Where("sequence_id = ? AND step_order = ?",
			enrollment.SequenceID, enrollment.CurrentStep).First(&step).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		action := DueAction{
			EnrollmentID:    enrollment.ID,
			ContactID:       enrollment.ContactID,
			ContactName:     enrollment.Contact.FullName(),
			ContactEmail:    enrollment.Contact.Email,
			ContactCompany:  enrollment.Contact.Company,
			SequenceID:      enrollment.SequenceID,
			SequenceName:    enrollment.Sequence.Name,
			StepNumber:      step.StepOrder,
			StepType:        step.StepType,
			TaskDescription: step.TaskDescription,
		}
		if enrollment.NextStepAt != nil {
			action.ScheduledAt = *enrollment.NextStepAt
		}

		if step.StepType == models.StepTypeEmail && step.TemplateID != nil {
			var template models.EmailTemplate
			if err := se.DB.First(&template, *step.TemplateID).Error; err == nil {
				action.TemplateID = step.TemplateID
				action.TemplateName = template.Name
				subject := models.RenderText(template.Subject, enrollment.Contact.TemplateVars())
				action.SubjectPreview = truncate(subject, subjectPreviewLen)
			}
		}

		switch step.StepType {
		case models.StepTypeEmail:
			result.EmailActions++
		case models.StepTypeCall:
			result.CallActions++
		default:
			result.OtherActions++
		}

		result.Actions = append(result.Actions, action)
	}

	result.TotalActions = len(result.Actions)
	return result, nil
}

// ExecuteEmailStep records that the email for the current step went out:
// it logs an email_sent activity with the rendered subject, bumps the
// contact's sent counter, stamps last contact, applies the first-contact
// status transition and advances the enrollment.
func (se *SequenceEngine) ExecuteEmailStep(enrollmentID uint, messageID string) (*models.Activity, error) {
	var activity models.Activity

	err := se.DB.Transaction(func(tx *gorm.DB) error {
		enrollment, contact, sequence, err := se.loadEnrollment(tx, enrollmentID)
		if err != nil {
			return err
		}

		var step models.SequenceStep
		err = tx.Where("sequence_id = ? AND step_order = ?",
			sequence.ID, enrollment.CurrentStep).First(&step).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("step %d of sequence %d: %w", enrollment.CurrentStep, sequence.ID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		subject := "Email"
		if step.TemplateID != nil {
			var template models.EmailTemplate
			if err := tx.First(&template, *step.TemplateID).Error; err == nil {
				subject = models.RenderText(template.Subject, contact.TemplateVars())
			}
		}
		if step.SubjectOverride != "" {
			subject = models.RenderText(step.SubjectOverride, contact.TemplateVars())
		}

		now := time.Now().UTC()
		activity = models.Activity{
			ContactID:      contact.ID,
			ActivityType:   models.ActivityEmailSent,
			Description:    fmt.Sprintf("Sent email from sequence: %s", sequence.Name),
			EmailSubject:   subject,
			EmailMessageID: messageID,
			SequenceID:     &sequence.ID,
			SequenceStep:   utils.Pointer(step.StepOrder),
			PerformedAt:    now,
			PerformedBy:    "system",
		}
		if err := tx.Create(&activity).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"emails_sent":       gorm.Expr("emails_sent + ?", 1),
			"last_contacted_at": now,
		}
		if err := tx.Model(&models.Contact{}).Where("id = ?", contact.ID).Updates(updates).Error; err != nil {
			return err
		}
		// First-contact transition only, later statuses are never overridden.
		if contact.Status == models.ContactStatusNew {
			if err := tx.Model(&models.Contact{}).
				Where("id = ? AND status = ?", contact.ID, models.ContactStatusNew).
				Update("status", models.ContactStatusContacted).Error; err != nil {
				return err
			}
		}

		return se.advance(tx, enrollment)
	})
	if err != nil {
		return nil, err
	}

	return &activity, nil
}

// ExecuteCallStep records a call outcome against the current step and
// advances the enrollment. Unrecognized outcomes fall back to a generic
// call_made activity.
func (se *SequenceEngine) ExecuteCallStep(enrollmentID uint, outcome, notes string) (*models.Activity, error) {
	var activity models.Activity

	err := se.DB.Transaction(func(tx *gorm.DB) error {
		enrollment, contact, sequence, err := se.loadEnrollment(tx, enrollmentID)
		if err != nil {
			return err
		}

		activityType := models.ActivityCallMade
		switch outcome {
		case "answered":
			activityType = models.ActivityCallAnswered
		case "no_answer":
			activityType = models.ActivityCallNoAnswer
		}

		description := notes
		if description == "" {
			description = fmt.Sprintf("Call from sequence: %s", sequence.Name)
		}

		now := time.Now().UTC()
		activity = models.Activity{
			ContactID:    contact.ID,
			ActivityType: activityType,
			Description:  description,
			SequenceID:   &sequence.ID,
			SequenceStep: utils.Pointer(enrollment.CurrentStep),
			PerformedAt:  now,
			PerformedBy:  "system",
		}
		if err := tx.Create(&activity).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Contact{}).
			Where("id = ?", contact.ID).
			Update("last_contacted_at", now).Error; err != nil {
			return err
		}

		return se.advance(tx, enrollment)
	})
	if err != nil {
		return nil, err
	}

	return &activity, nil
}

func (se *SequenceEngine) loadEnrollment(tx *gorm.DB, enrollmentID uint) (*models.Enrollment, *models.Contact, *models.Sequence, error) {
	var enrollment models.Enrollment
	err := tx.Preload("Contact").Preload("Sequence").First(&enrollment, enrollmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil, fmt.Errorf("enrollment %d: %w", enrollmentID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, nil, nil, ErrNotActive
	}
	return &enrollment, &enrollment.Contact, &enrollment.Sequence, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
