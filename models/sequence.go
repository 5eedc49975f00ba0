package models

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
)

type SequenceStatus string

const (
	SequenceStatusDraft    SequenceStatus = "draft"
	SequenceStatusActive   SequenceStatus = "active"
	SequenceStatusPaused   SequenceStatus = "paused"
	SequenceStatusArchived SequenceStatus = "archived"
)

type StepType string

const (
	StepTypeEmail    StepType = "email"
	StepTypeCall     StepType = "call"
	StepTypeLinkedin StepType = "linkedin"
	StepTypeTask     StepType = "task"
)

// EnrollmentStatus is the per-contact progress state machine.
type EnrollmentStatus string

const (
	EnrollmentStatusActive       EnrollmentStatus = "active"
	EnrollmentStatusPaused       EnrollmentStatus = "paused"
	EnrollmentStatusCompleted    EnrollmentStatus = "completed"
	EnrollmentStatusReplied      EnrollmentStatus = "replied"
	EnrollmentStatusBounced      EnrollmentStatus = "bounced"
	EnrollmentStatusUnsubscribed EnrollmentStatus = "unsubscribed"
)

// Terminal reports whether the status ends the enrollment lifecycle. The
// engine never reactivates a terminal enrollment.
func (s EnrollmentStatus) Terminal() bool {
	switch s {
	case EnrollmentStatusCompleted, EnrollmentStatusReplied,
		EnrollmentStatusBounced, EnrollmentStatusUnsubscribed:
		return true
	}
	return false
}

// Sequence is an ordered multi-step outreach campaign.
type Sequence struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	// Targeting is advisory only, not enforced at enrollment time.
	TargetIndustry string `json:"target_industry"` // comma-separated
	TargetPersona  string `json:"target_persona"`  // comma-separated

	Status SequenceStatus `gorm:"default:'draft'" json:"status"`

	// Relations
	Steps       []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
	Enrollments []Enrollment   `gorm:"foreignKey:SequenceID" json:"enrollments,omitempty"`
}

// SequenceStep is one stage in a sequence. StepOrder is the sole ordering
// key: the engine finds the next step by order+1, so orders are validated to
// be contiguous at save time.
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	StepOrder int      `gorm:"not null" json:"step_order"` // 1, 2, 3...
	StepType  StepType `gorm:"not null" json:"step_type"`

	// Delay from the previous step's completion, in days.
	DelayDays int `gorm:"default:0" json:"delay_days"`

	// Email steps
	TemplateID      *uint  `gorm:"index" json:"template_id,omitempty"`
	SubjectOverride string `json:"subject_override"`

	// Call/task steps
	TaskDescription string `gorm:"type:text" json:"task_description"`

	// Relations
	Template *EmailTemplate `json:"template,omitempty"`
}

// Enrollment tracks one contact's progress through one sequence. At most one
// active enrollment may exist per (contact, sequence) pair.
type Enrollment struct {
	gorm.Model
	ContactID  uint `gorm:"not null;index" json:"contact_id"`
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	CurrentStep int              `gorm:"default:1" json:"current_step"`
	Status      EnrollmentStatus `gorm:"default:'active'" json:"status"`

	EnrolledAt  time.Time  `json:"enrolled_at"`
	NextStepAt  *time.Time `gorm:"index" json:"next_step_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Relations
	Contact  Contact  `json:"-"`
	Sequence Sequence `json:"-"`
}

// ValidateStepOrder checks that step orders form a contiguous 1..N run with
// no duplicates. A gap would make the engine terminate the sequence early.
func ValidateStepOrder(steps []SequenceStep) error {
	if len(steps) == 0 {
		return nil
	}

	orders := make([]int, len(steps))
	for i, s := range steps {
		orders[i] = s.StepOrder
	}
	sort.Ints(orders)

	for i, order := range orders {
		want := i + 1
		if order == want {
			continue
		}
		if i > 0 && order == orders[i-1] {
			return fmt.Errorf("duplicate step order %d", order)
		}
		return fmt.Errorf("step orders must be contiguous starting at 1, missing order %d", want)
	}
	return nil
}
