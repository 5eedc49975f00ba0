package models

import (
	"time"

	"gorm.io/gorm"

	"outreachcrm/icp"
)

// ContactStatus is the outreach state machine for a contact.
type ContactStatus string

const (
	ContactStatusNew           ContactStatus = "new"
	ContactStatusContacted     ContactStatus = "contacted"
	ContactStatusEngaged       ContactStatus = "engaged"
	ContactStatusQualified     ContactStatus = "qualified"
	ContactStatusMeetingBooked ContactStatus = "meeting_booked"
	ContactStatusNotInterested ContactStatus = "not_interested"
	ContactStatusBounced       ContactStatus = "bounced"
	ContactStatusUnsubscribed  ContactStatus = "unsubscribed"
)

type Industry string

const (
	IndustryChemicalRecycling Industry = "chemical_recycling"
	IndustryPackaging         Industry = "packaging"
	IndustryTires             Industry = "tires"
	IndustryPlastics          Industry = "plastics"
	IndustryWEEE              Industry = "weee"
	IndustryOther             Industry = "other"
)

type Persona string

const (
	PersonaSustainabilityManager Persona = "sustainability_manager"
	PersonaOperationsDirector    Persona = "operations_director"
	PersonaCEO                   Persona = "ceo"
	PersonaProcurement           Persona = "procurement"
	PersonaCompliance            Persona = "compliance"
	PersonaOther                 Persona = "other"
)

// Contact represents a single prospect, kept in sync with HubSpot.
type Contact struct {
	gorm.Model

	// HubSpot sync
	HubspotID       *string    `gorm:"uniqueIndex" json:"hubspot_id,omitempty"`
	HubspotSyncedAt *time.Time `json:"hubspot_synced_at,omitempty"`

	// Basic info
	Email     string `gorm:"not null;uniqueIndex" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`

	// Company info
	Company     string `json:"company"`
	JobTitle    string `json:"job_title"`
	LinkedinURL string `json:"linkedin_url"`

	// Segmentation
	Industry Industry `gorm:"default:'other'" json:"industry"`
	Persona  Persona  `gorm:"default:'other'" json:"persona"`

	// Scoring inputs live in the embedded icp.Criteria so the database schema
	// and the scoring engine share one declaration. Score and tier are derived
	// and must be refreshed whenever a criteria field changes.
	icp.Criteria `gorm:"embedded"`
	ICPScore     int      `gorm:"default:0" json:"icp_score"`
	ICPTier      icp.Tier `gorm:"default:'non_target'" json:"icp_tier"`

	// Enrichment data (Lusha)
	CompanySize    string `json:"company_size"` // e.g. "50-100", "100+"
	CompanyRevenue string `json:"company_revenue"`
	CompanyCountry string `json:"company_country"`
	CompanyWebsite string `json:"company_website"`

	// Outreach status
	Status ContactStatus `gorm:"default:'new'" json:"status"`

	// Email counters
	EmailsSent      int        `gorm:"default:0" json:"emails_sent"`
	EmailsOpened    int        `gorm:"default:0" json:"emails_opened"`
	EmailsClicked   int        `gorm:"default:0" json:"emails_clicked"`
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty"`
	LastRepliedAt   *time.Time `json:"last_replied_at,omitempty"`

	Notes string `gorm:"type:text" json:"notes"`

	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`

	// Relations
	Activities  []Activity   `gorm:"foreignKey:ContactID" json:"activities,omitempty"`
	Enrollments []Enrollment `gorm:"foreignKey:ContactID" json:"enrollments,omitempty"`
}

// FullName falls back to the email address when no name fields are set.
func (c *Contact) FullName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	case c.LastName != "":
		return c.LastName
	default:
		return c.Email
	}
}

// TemplateVars returns the variable mapping used for email template rendering.
func (c *Contact) TemplateVars() map[string]string {
	return map[string]string{
		"firstName": c.FirstName,
		"lastName":  c.LastName,
		"fullName":  c.FullName(),
		"email":     c.Email,
		"company":   c.Company,
		"jobTitle":  c.JobTitle,
		"industry":  string(c.Industry),
	}
}

// RefreshScore recomputes the derived score and tier from the current
// criteria. Every write path that touches a scoring input calls this before
// persisting.
func (c *Contact) RefreshScore() {
	c.ICPScore = icp.Score(c.Criteria)
	c.ICPTier = icp.TierForScore(c.ICPScore)
}

// PriorityLabel returns the display label for the contact's current score.
func (c *Contact) PriorityLabel() string {
	return icp.PriorityLabel(c.ICPScore)
}
