package engine

import (
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"outreachcrm/models"
	"outreachcrm/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Contact{},
		&models.EmailTemplate{},
		&models.Sequence{},
		&models.SequenceStep{},
		&models.Enrollment{},
		&models.Activity{},
	))
	return db
}

func newTestEngine(t *testing.T) (*SequenceEngine, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewSequenceEngine(db, log.New(os.Stdout, "ENGINE-TEST: ", log.LstdFlags)), db
}

func seedContact(t *testing.T, db *gorm.DB, email string) *models.Contact {
	t.Helper()
	contact := &models.Contact{
		Email:     email,
		FirstName: "Claire",
		LastName:  "Martin",
		Company:   "Recyclage Nord",
		Status:    models.ContactStatusNew,
	}
	require.NoError(t, db.Create(contact).Error)
	return contact
}

func seedSequence(t *testing.T, db *gorm.DB, steps ...models.SequenceStep) *models.Sequence {
	t.Helper()
	sequence := &models.Sequence{
		Name:   "ISCC outreach",
		Status: models.SequenceStatusActive,
		Steps:  steps,
	}
	require.NoError(t, db.Create(sequence).Error)
	return sequence
}

func seedTemplate(t *testing.T, db *gorm.DB) *models.EmailTemplate {
	t.Helper()
	template := &models.EmailTemplate{
		Name:     "Intro",
		Subject:  "Hi {{firstName}}, about {{company}}",
		BodyHTML: "<p>Hello {{firstName}}</p>",
	}
	require.NoError(t, db.Create(template).Error)
	return template
}

func TestEnrollStartsAtStepOne(t *testing.T) {
	eng, db := newTestEngine(t)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail, DelayDays: 0},
		models.SequenceStep{StepOrder: 2, StepType: models.StepTypeCall, DelayDays: 3},
	)

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)

	assert.Equal(t, 1, enrollment.CurrentStep)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NotNil(t, enrollment.NextStepAt)
	assert.WithinDuration(t, time.Now().UTC(), *enrollment.NextStepAt, 5*time.Second)
}

func TestEnrollWithDelayedStart(t *testing.T) {
	eng, db := newTestEngine(t)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail, DelayDays: 2},
	)

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, false)
	require.NoError(t, err)

	require.NotNil(t, enrollment.NextStepAt)
	expected := time.Now().UTC().AddDate(0, 0, 2)
	assert.WithinDuration(t, expected, *enrollment.NextStepAt, 5*time.Second)
}

func TestEnrollRejectsActiveDuplicate(t *testing.T) {
	eng, db := newTestEngine(t)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail},
	)

	_, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)

	_, err = eng.Enroll(contact.ID, sequence.ID, true)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestEnrollAllowsReenrollAfterCompletion(t *testing.T) {
	eng, db := newTestEngine(t)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail},
	)

	first, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)
	require.NoError(t, eng.Unenroll(first.ID))

	second, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestEnrollFailsWithoutFirstStep(t *testing.T) {
	eng, db := newTestEngine(t)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")
	sequence := seedSequence(t, db)

	_, err := eng.Enroll(contact.ID, sequence.ID, true)
	assert.ErrorIs(t, err, ErrNoFirstStep)
}

func TestUnenrollIsIdempotent(t *testing.T) {
	eng, db := newTestEngine(t)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail},
	)

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)
	require.NoError(t, eng.Unenroll(enrollment.ID))

	var afterFirst models.Enrollment
	require.NoError(t, db.First(&afterFirst, enrollment.ID).Error)
	require.NotNil(t, afterFirst.CompletedAt)
	firstCompletedAt := *afterFirst.CompletedAt

	// Second call is a no-op and must not move completed_at.
	require.NoError(t, eng.Unenroll(enrollment.ID))

	var afterSecond models.Enrollment
	require.NoError(t, db.First(&afterSecond, enrollment.ID).Error)
	assert.Equal(t, models.EnrollmentStatusCompleted, afterSecond.Status)
	require.NotNil(t, afterSecond.CompletedAt)
	assert.Equal(t, firstCompletedAt.Unix(), afterSecond.CompletedAt.Unix())
}

func TestAdvanceSchedulesNextStepWithDelay(t *testing.T) {
	eng, db := newTestEngine(t)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail},
		models.SequenceStep{StepOrder: 2, StepType: models.StepTypeCall, DelayDays: 4},
	)

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)

	require.NoError(t, eng.AdvanceToNextStep(enrollment))

	assert.Equal(t, 2, enrollment.CurrentStep)
	require.NotNil(t, enrollment.NextStepAt)
	expected := time.Now().UTC().AddDate(0, 0, 4)
	assert.WithinDuration(t, expected, *enrollment.NextStepAt, 5*time.Second)
}

func TestAdvancePastLastStepCompletes(t *testing.T) {
	eng, db := newTestEngine(t)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail},
	)

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)

	require.NoError(t, eng.AdvanceToNextStep(enrollment))

	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Nil(t, enrollment.NextStepAt)
	require.NotNil(t, enrollment.CompletedAt)

	var stored models.Enrollment
	require.NoError(t, db.First(&stored, enrollment.ID).Error)
	assert.Equal(t, models.EnrollmentStatusCompleted, stored.Status)
	assert.Nil(t, stored.NextStepAt)
}

func TestMarkRepliedStopsSequenceAndUpdatesContact(t *testing.T) {
	eng, db := newTestEngine(t)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail},
	)

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)

	require.NoError(t, eng.MarkReplied(enrollment.ID))

	var stored models.Enrollment
	require.NoError(t, db.First(&stored, enrollment.ID).Error)
	assert.Equal(t, models.EnrollmentStatusReplied, stored.Status)
	assert.Nil(t, stored.NextStepAt)

	var storedContact models.Contact
	require.NoError(t, db.First(&storedContact, contact.ID).Error)
	assert.Equal(t, models.ContactStatusEngaged, storedContact.Status)
	assert.NotNil(t, storedContact.LastRepliedAt)
}

func TestMarkRepliedOnTerminalEnrollmentIsNoOp(t *testing.T) {
	eng, db := newTestEngine(t)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail},
	)

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)
	require.NoError(t, eng.Unenroll(enrollment.ID))

	require.NoError(t, eng.MarkReplied(enrollment.ID))

	var stored models.Enrollment
	require.NoError(t, db.First(&stored, enrollment.ID).Error)
	assert.Equal(t, models.EnrollmentStatusCompleted, stored.Status)
}

func TestGetDueActionsFiltersAndSorts(t *testing.T) {
	eng, db := newTestEngine(t)
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail},
	)

	now := time.Now().UTC()
	yesterday := now.AddDate(0, 0, -1)
	tomorrow := now.AddDate(0, 0, 1)

	overdueContact := seedContact(t, db, "overdue@example.com")
	dueContact := seedContact(t, db, "due@example.com")
	futureContact := seedContact(t, db, "future@example.com")
	repliedContact := seedContact(t, db, "replied@example.com")

	seedEnrollment := func(contactID uint, nextStepAt time.Time, status models.EnrollmentStatus) {
		require.NoError(t, db.Create(&models.Enrollment{
			ContactID:   contactID,
			SequenceID:  sequence.ID,
			CurrentStep: 1,
			Status:      status,
			EnrolledAt:  yesterday,
			NextStepAt:  utils.Pointer(nextStepAt),
		}).Error)
	}

	seedEnrollment(overdueContact.ID, yesterday, models.EnrollmentStatusActive)
	seedEnrollment(dueContact.ID, now, models.EnrollmentStatusActive)
	seedEnrollment(futureContact.ID, tomorrow, models.EnrollmentStatusActive)
	seedEnrollment(repliedContact.ID, yesterday, models.EnrollmentStatusReplied)

	actions, err := eng.GetDueActions(now)
	require.NoError(t, err)

	require.Equal(t, 2, actions.TotalActions)
	assert.Equal(t, 2, actions.EmailActions)
	// Overdue from yesterday sorts before today's action.
	assert.Equal(t, "overdue@example.com", actions.Actions[0].ContactEmail)
	assert.Equal(t, "due@example.com", actions.Actions[1].ContactEmail)
}

func TestGetDueActionsRendersSubjectPreview(t *testing.T) {
	eng, db := newTestEngine(t)
	template := seedTemplate(t, db)
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail, TemplateID: &template.ID},
	)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")

	_, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)

	actions, err := eng.GetDueActions(time.Now().UTC())
	require.NoError(t, err)

	require.Len(t, actions.Actions, 1)
	assert.Equal(t, "Hi Claire, about Recyclage Nord", actions.Actions[0].SubjectPreview)
	assert.Equal(t, "Intro", actions.Actions[0].TemplateName)
}

func TestExecuteEmailStepFullFlow(t *testing.T) {
	eng, db := newTestEngine(t)
	template := seedTemplate(t, db)
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail, TemplateID: &template.ID},
		models.SequenceStep{StepOrder: 2, StepType: models.StepTypeCall, DelayDays: 3},
	)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)

	activity, err := eng.ExecuteEmailStep(enrollment.ID, "msg-123")
	require.NoError(t, err)

	assert.Equal(t, models.ActivityEmailSent, activity.ActivityType)
	assert.Equal(t, "Hi Claire, about Recyclage Nord", activity.EmailSubject)
	assert.Equal(t, "msg-123", activity.EmailMessageID)
	require.NotNil(t, activity.SequenceStep)
	assert.Equal(t, 1, *activity.SequenceStep)

	var storedContact models.Contact
	require.NoError(t, db.First(&storedContact, contact.ID).Error)
	assert.Equal(t, 1, storedContact.EmailsSent)
	assert.Equal(t, models.ContactStatusContacted, storedContact.Status)
	assert.NotNil(t, storedContact.LastContactedAt)

	var storedEnrollment models.Enrollment
	require.NoError(t, db.First(&storedEnrollment, enrollment.ID).Error)
	assert.Equal(t, 2, storedEnrollment.CurrentStep)
	assert.Equal(t, models.EnrollmentStatusActive, storedEnrollment.Status)
}

func TestExecuteEmailStepSubjectOverrideWins(t *testing.T) {
	eng, db := newTestEngine(t)
	template := seedTemplate(t, db)
	sequence := seedSequence(t, db,
		models.SequenceStep{
			StepOrder:       1,
			StepType:        models.StepTypeEmail,
			TemplateID:      &template.ID,
			SubjectOverride: "Follow-up on our call",
		},
	)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)

	activity, err := eng.ExecuteEmailStep(enrollment.ID, "msg-456")
	require.NoError(t, err)
	assert.Equal(t, "Follow-up on our call", activity.EmailSubject)
}

func TestExecuteEmailStepRendersSubjectOverride(t *testing.T) {
	eng, db := newTestEngine(t)
	template := seedTemplate(t, db)
	sequence := seedSequence(t, db,
		models.SequenceStep{
			StepOrder:       1,
			StepType:        models.StepTypeEmail,
			TemplateID:      &template.ID,
			SubjectOverride: "Re: {{company}} follow-up",
		},
	)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)

	activity, err := eng.ExecuteEmailStep(enrollment.ID, "msg-457")
	require.NoError(t, err)
	assert.Equal(t, "Re: Recyclage Nord follow-up", activity.EmailSubject)
}

func TestExecuteEmailStepDoesNotDowngradeStatus(t *testing.T) {
	eng, db := newTestEngine(t)
	template := seedTemplate(t, db)
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail, TemplateID: &template.ID},
	)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")
	require.NoError(t, db.Model(contact).Update("status", models.ContactStatusEngaged).Error)

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)

	_, err = eng.ExecuteEmailStep(enrollment.ID, "msg-789")
	require.NoError(t, err)

	var storedContact models.Contact
	require.NoError(t, db.First(&storedContact, contact.ID).Error)
	assert.Equal(t, models.ContactStatusEngaged, storedContact.Status)
}

func TestExecuteEmailStepRejectsInactiveEnrollment(t *testing.T) {
	eng, db := newTestEngine(t)
	template := seedTemplate(t, db)
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail, TemplateID: &template.ID},
	)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)
	require.NoError(t, eng.Unenroll(enrollment.ID))

	_, err = eng.ExecuteEmailStep(enrollment.ID, "msg-000")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestExecuteCallStepOutcomeMapping(t *testing.T) {
	tests := []struct {
		outcome string
		want    models.ActivityType
	}{
		{"answered", models.ActivityCallAnswered},
		{"no_answer", models.ActivityCallNoAnswer},
		{"other", models.ActivityCallMade},
	}

	for _, tc := range tests {
		t.Run(tc.outcome, func(t *testing.T) {
			eng, db := newTestEngine(t)
			sequence := seedSequence(t, db,
				models.SequenceStep{StepOrder: 1, StepType: models.StepTypeCall},
			)
			contact := seedContact(t, db, "claire@recyclage-nord.fr")

			enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
			require.NoError(t, err)

			activity, err := eng.ExecuteCallStep(enrollment.ID, tc.outcome, "")
			require.NoError(t, err)
			assert.Equal(t, tc.want, activity.ActivityType)
			assert.Equal(t, "Call from sequence: ISCC outreach", activity.Description)
		})
	}
}

// Enroll, execute both steps, and verify the enrollment lands completed with
// the full activity trail.
func TestSequenceLifecycleEndToEnd(t *testing.T) {
	eng, db := newTestEngine(t)
	template := seedTemplate(t, db)
	sequence := seedSequence(t, db,
		models.SequenceStep{StepOrder: 1, StepType: models.StepTypeEmail, TemplateID: &template.ID},
		models.SequenceStep{StepOrder: 2, StepType: models.StepTypeCall, DelayDays: 2},
	)
	contact := seedContact(t, db, "claire@recyclage-nord.fr")

	enrollment, err := eng.Enroll(contact.ID, sequence.ID, true)
	require.NoError(t, err)

	_, err = eng.ExecuteEmailStep(enrollment.ID, "msg-1")
	require.NoError(t, err)

	// Step 2 is scheduled in the future and must not appear today.
	today, err := eng.GetDueActions(time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, today.TotalActions)

	// Pull the step due date back to make it actionable.
	require.NoError(t, db.Model(&models.Enrollment{}).
		Where("id = ?", enrollment.ID).
		Update("next_step_at", time.Now().UTC().Add(-time.Hour)).Error)

	_, err = eng.ExecuteCallStep(enrollment.ID, "answered", "Booked a demo")
	require.NoError(t, err)

	var final models.Enrollment
	require.NoError(t, db.First(&final, enrollment.ID).Error)
	assert.Equal(t, models.EnrollmentStatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.Nil(t, final.NextStepAt)

	var activities []models.Activity
	require.NoError(t, db.Where("contact_id = ?", contact.ID).
		Order("id ASC").Find(&activities).Error)
	require.Len(t, activities, 2)
	assert.Equal(t, models.ActivityEmailSent, activities[0].ActivityType)
	assert.Equal(t, models.ActivityCallAnswered, activities[1].ActivityType)
	assert.Equal(t, "Booked a demo", activities[1].Description)
}
