package enrichment

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"outreachcrm/icp"
	"outreachcrm/models"
	"outreachcrm/utils"
)

// ErrNoData is returned when the provider has no record for the lookup key.
var ErrNoData = errors.New("no enrichment data found")

// freemailDomains never identify a company.
var freemailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
}

// Service enriches contacts from Lusha and re-scores them afterwards.
type Service struct {
	DB     *gorm.DB
	Client *LushaClient
	Logger *log.Logger
}

func NewService(db *gorm.DB, client *LushaClient) *Service {
	return &Service{
		DB:     db,
		Client: client,
		Logger: log.New(os.Stdout, "ENRICH: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// BatchResult counts per-contact outcomes of a batch enrichment run.
type BatchResult struct {
	Enriched int `json:"enriched"`
	NoData   int `json:"no_data"`
	Errors   int `json:"errors"`
}

// EnrichContact fills missing contact fields from Lusha, infers scoring
// criteria from the contact's text, and re-scores. Existing values are never
// overwritten. Person and company lookups fail independently and never abort
// the pass; inference and rescoring run even when the provider returned
// nothing, since manually entered notes carry scoring signal on their own.
func (s *Service) EnrichContact(contact *models.Contact) error {
	gotData := false

	person, err := s.Client.FetchPerson(contact.Email)
	if err != nil && !errors.Is(err, ErrNoData) {
		utils.LogError("lusha_person_lookup", err, map[string]interface{}{
			"contact_id": contact.ID,
		})
	}
	if person != nil {
		s.applyPersonData(contact, person)
		gotData = true
	}

	domain := extractDomain(contact.Email, contact.Company)
	if domain != "" {
		company, err := s.Client.FetchCompany(domain)
		if err != nil && !errors.Is(err, ErrNoData) {
			utils.LogError("lusha_company_lookup", err, map[string]interface{}{
				"contact_id": contact.ID,
				"domain":     domain,
			})
		}
		if company != nil {
			s.applyCompanyData(contact, company)
			gotData = true
		}
	}

	s.inferCriteria(contact)
	contact.RefreshScore()
	if err := s.DB.Save(contact).Error; err != nil {
		return err
	}

	if !gotData {
		return ErrNoData
	}
	return nil
}

// EnrichBatch enriches each contact independently. One failure never stops
// the batch.
func (s *Service) EnrichBatch(contactIDs []uint) (*BatchResult, error) {
	result := &BatchResult{}

	for _, id := range contactIDs {
		var contact models.Contact
		if err := s.DB.First(&contact, id).Error; err != nil {
			result.Errors++
			continue
		}

		err := s.EnrichContact(&contact)
		switch {
		case errors.Is(err, ErrNoData):
			result.NoData++
		case err != nil:
			result.Errors++
			utils.LogError("enrich_contact", err, map[string]interface{}{
				"contact_id": id,
			})
		default:
			result.Enriched++
		}
	}

	return result, nil
}

// applyPersonData fills empty person fields only.
func (s *Service) applyPersonData(contact *models.Contact, person *PersonData) {
	if contact.FirstName == "" {
		contact.FirstName = person.FirstName
	}
	if contact.LastName == "" {
		contact.LastName = person.LastName
	}
	if contact.JobTitle == "" {
		contact.JobTitle = person.JobTitle
	}
	if contact.Phone == "" {
		contact.Phone = person.Phone
	}
	if contact.LinkedinURL == "" {
		contact.LinkedinURL = person.LinkedinURL
	}
	if contact.Company == "" {
		contact.Company = person.CompanyName
	}
}

// applyCompanyData fills empty company fields only.
func (s *Service) applyCompanyData(contact *models.Contact, company *CompanyData) {
	if contact.Company == "" {
		contact.Company = company.Name
	}
	if contact.CompanySize == "" {
		contact.CompanySize = company.EmployeeCount
	}
	if contact.CompanyRevenue == "" {
		contact.CompanyRevenue = company.Revenue
	}
	if contact.CompanyCountry == "" {
		contact.CompanyCountry = company.Country
	}
	if contact.CompanyWebsite == "" {
		contact.CompanyWebsite = company.Website
	}
	if contact.Notes == "" && company.Description != "" {
		contact.Notes = company.Description
	}
}

// inferCriteria derives scoring inputs from the enriched text. It only ever
// turns criteria on; manual flags stay set.
func (s *Service) inferCriteria(contact *models.Contact) {
	if contact.CompanySegment == "" || contact.CompanySegment == icp.SegmentOther {
		if segment, ok := icp.DetectSegment(
			contact.Company, contact.JobTitle, contact.CompanyWebsite, contact.Notes,
		); ok {
			contact.CompanySegment = segment
		}
	}

	if !contact.EmployeesOver100 {
		if count, ok := parseEmployeeCount(contact.CompanySize); ok && count >= 100 {
			contact.EmployeesOver100 = true
		}
	}

	text := strings.ToLower(strings.Join([]string{
		contact.Company, contact.JobTitle, contact.Notes, contact.CompanyWebsite,
	}, " "))
	if strings.Contains(text, "iscc") && !contact.ISCCCertified && !contact.ISCCInProgress {
		if strings.Contains(text, "in progress") || strings.Contains(text, "pending") {
			contact.ISCCInProgress = true
		} else {
			contact.ISCCCertified = true
		}
	}
	if !contact.EPRPPWRExposure &&
		(strings.Contains(text, "epr") || strings.Contains(text, "ppwr") ||
			strings.Contains(text, "extended producer responsibility")) {
		contact.EPRPPWRExposure = true
	}
}

// extractDomain resolves a lookup domain from the contact's email, falling
// back to a guess from the company name. Freemail domains are ignored.
func extractDomain(email, company string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		domain := strings.ToLower(email[at+1:])
		if domain != "" && !freemailDomains[domain] {
			return domain
		}
	}

	if company == "" {
		return ""
	}
	cleaned := strings.ToLower(company)
	for _, suffix := range []string{" gmbh", " sas", " sarl", " ltd", " llc", " inc", " sa", " bv"} {
		cleaned = strings.TrimSuffix(cleaned, suffix)
	}
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	if cleaned == "" {
		return ""
	}
	return cleaned + ".com"
}

// parseEmployeeCount pulls the first number out of a size string like
// "100-500" or "250+ employees".
func parseEmployeeCount(size string) (int, bool) {
	start := -1
	for i := 0; i < len(size); i++ {
		if size[i] >= '0' && size[i] <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, err := strconv.Atoi(size[start:i])
			return n, err == nil
		}
	}
	if start >= 0 {
		n, err := strconv.Atoi(size[start:])
		return n, err == nil
	}
	return 0, false
}
