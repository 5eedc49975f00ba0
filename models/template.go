package models

import (
	"regexp"

	"gorm.io/gorm"
)

// EmailTemplate holds subject/body strings with {{variable}} placeholders.
type EmailTemplate struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	Subject  string `gorm:"not null" json:"subject"`
	BodyHTML string `gorm:"type:text;not null" json:"body_html"`
	BodyText string `gorm:"type:text" json:"body_text"`

	// Categorization
	Category       string `json:"category"` // e.g. "initial_outreach", "follow_up"
	TargetPersona  string `json:"target_persona"`
	TargetIndustry string `json:"target_industry"`

	IsActive bool `gorm:"default:true" json:"is_active"`
}

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// RenderText substitutes {{variable}} placeholders in a single linear pass.
// Unknown placeholders are left verbatim so missing data stays visible in
// previews instead of silently disappearing. Values are inserted as-is, no
// HTML escaping.
func RenderText(text string, vars map[string]string) string {
	if text == "" {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-2]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Render applies the variable mapping to subject, HTML body and plain-text
// body independently.
func (t *EmailTemplate) Render(vars map[string]string) (subject, bodyHTML, bodyText string) {
	return RenderText(t.Subject, vars), RenderText(t.BodyHTML, vars), RenderText(t.BodyText, vars)
}

// TemplateVariables is the closed set of supported placeholder names.
func TemplateVariables() []string {
	return []string{
		"firstName",
		"lastName",
		"fullName",
		"email",
		"company",
		"jobTitle",
		"industry",
	}
}
