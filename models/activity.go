package models

import (
	"time"

	"gorm.io/gorm"
)

type ActivityType string

const (
	ActivityEmailSent        ActivityType = "email_sent"
	ActivityEmailOpened      ActivityType = "email_opened"
	ActivityEmailClicked     ActivityType = "email_clicked"
	ActivityEmailReplied     ActivityType = "email_replied"
	ActivityEmailBounced     ActivityType = "email_bounced"
	ActivityCallMade         ActivityType = "call_made"
	ActivityCallAnswered     ActivityType = "call_answered"
	ActivityCallNoAnswer     ActivityType = "call_no_answer"
	ActivityMeetingBooked    ActivityType = "meeting_booked"
	ActivityLinkedinSent     ActivityType = "linkedin_sent"
	ActivityLinkedinAccepted ActivityType = "linkedin_accepted"
	ActivityNoteAdded        ActivityType = "note_added"
	ActivityStatusChanged    ActivityType = "status_changed"
)

// Activity is an append-only log entry for everything done on a contact.
// Rows are never mutated after creation except to attach the HubSpot
// engagement id once the push succeeds.
type Activity struct {
	gorm.Model
	ContactID uint `gorm:"not null;index" json:"contact_id"`

	ActivityType ActivityType `gorm:"not null;index" json:"activity_type"`
	Description  string       `gorm:"type:text" json:"description"`

	// Email activities
	EmailSubject   string `json:"email_subject"`
	EmailMessageID string `json:"email_message_id"` // provider message id

	// Sequence tracking
	SequenceID   *uint `json:"sequence_id,omitempty"`
	SequenceStep *int  `json:"sequence_step,omitempty"`

	// HubSpot sync
	HubspotEngagementID string `json:"hubspot_engagement_id"`
	HubspotSynced       bool   `gorm:"default:false;index" json:"hubspot_synced"`

	PerformedAt time.Time `gorm:"index" json:"performed_at"`
	PerformedBy string    `gorm:"default:'system'" json:"performed_by"`

	// Relations
	Contact Contact `json:"-"`
}
