package hubspot

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"outreachcrm/models"
	"outreachcrm/utils"
)

// industryMap translates HubSpot's free-form industry strings to our enum.
var industryMap = map[string]models.Industry{
	"chemicals": models.IndustryChemicalRecycling,
	"chemical":  models.IndustryChemicalRecycling,
	"packaging": models.IndustryPackaging,
	"tire":      models.IndustryTires,
	"tires":     models.IndustryTires,
	"plastics":  models.IndustryPlastics,
	"plastic":   models.IndustryPlastics,
}

// ImportStats aggregates per-record outcomes of a contact import run.
type ImportStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// SyncService maps between local contacts/activities and the HubSpot schema.
type SyncService struct {
	DB        *gorm.DB
	Client    *Client
	Logger    *log.Logger
	FromEmail string
	Progress  *ProgressHub
}

func NewSyncService(db *gorm.DB, client *Client, logger *log.Logger, fromEmail string) *SyncService {
	return &SyncService{
		DB:        db,
		Client:    client,
		Logger:    logger,
		FromEmail: fromEmail,
		Progress:  NewProgressHub(),
	}
}

// mappedContact is the local view of one remote record.
type mappedContact struct {
	HubspotID string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Company   string
	JobTitle  string
	Industry  models.Industry
}

// MapRemoteContact translates HubSpot properties into local contact fields.
// Unknown industries default to "other".
func MapRemoteContact(rc RemoteContact) mappedContact {
	props := rc.Properties

	industry, ok := industryMap[normalize(props["industry"])]
	if !ok {
		industry = models.IndustryOther
	}

	return mappedContact{
		HubspotID: rc.ID,
		Email:     props["email"],
		FirstName: props["firstname"],
		LastName:  props["lastname"],
		Phone:     props["phone"],
		Company:   props["company"],
		JobTitle:  props["jobtitle"],
		Industry:  industry,
	}
}

func normalize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= 'A' && ch <= 'Z' {
			ch += 'a' - 'A'
		}
		out = append(out, ch)
	}
	return string(out)
}

// ImportContacts pulls every remote contact and upserts it locally, matching
// by HubSpot id first and email second. Records without an email are skipped;
// per-record failures are counted and never abort the batch.
func (s *SyncService) ImportContacts(pageSize int) (*ImportStats, error) {
	stats := &ImportStats{}

	remote, err := s.Client.FetchAllContacts(pageSize)
	if err != nil {
		return nil, err
	}

	s.Progress.Publish(ProgressEvent{Stage: "fetched", Total: len(remote)})

	for i, rc := range remote {
		mapped := MapRemoteContact(rc)

		if mapped.Email == "" {
			stats.Skipped++
			continue
		}

		created, err := s.upsertContact(mapped)
		if err != nil {
			stats.Errors++
			utils.LogError("hubspot_import_record", err, map[string]interface{}{
				"hubspot_id": mapped.HubspotID,
				"email":      mapped.Email,
			})
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}

		if i%25 == 0 || i == len(remote)-1 {
			s.Progress.Publish(ProgressEvent{
				Stage:     "importing",
				Processed: i + 1,
				Total:     len(remote),
			})
		}
	}

	s.Progress.Publish(ProgressEvent{Stage: "completed", Processed: len(remote), Total: len(remote)})
	return stats, nil
}

func (s *SyncService) upsertContact(mapped mappedContact) (created bool, err error) {
	now := time.Now().UTC()

	var existing models.Contact
	err = s.DB.Where("hubspot_id = ? OR email = ?", mapped.HubspotID, mapped.Email).First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		contact := models.Contact{
			HubspotID:       utils.Pointer(mapped.HubspotID),
			HubspotSyncedAt: &now,
			Email:           mapped.Email,
			FirstName:       mapped.FirstName,
			LastName:        mapped.LastName,
			Phone:           mapped.Phone,
			Company:         mapped.Company,
			JobTitle:        mapped.JobTitle,
			Industry:        mapped.Industry,
		}
		contact.RefreshScore()
		return true, s.DB.Create(&contact).Error
	}
	if err != nil {
		return false, err
	}

	// Non-destructive update: only overwrite with values the remote has.
	updates := map[string]interface{}{
		"hubspot_id":        mapped.HubspotID,
		"hubspot_synced_at": now,
	}
	if mapped.FirstName != "" {
		updates["first_name"] = mapped.FirstName
	}
	if mapped.LastName != "" {
		updates["last_name"] = mapped.LastName
	}
	if mapped.Phone != "" {
		updates["phone"] = mapped.Phone
	}
	if mapped.Company != "" {
		updates["company"] = mapped.Company
	}
	if mapped.JobTitle != "" {
		updates["job_title"] = mapped.JobTitle
	}
	if mapped.Industry != models.IndustryOther {
		updates["industry"] = mapped.Industry
	}

	return false, s.DB.Model(&existing).Updates(updates).Error
}

// PushContact sends a local contact to HubSpot, creating it when no remote id
// is stored yet. The synced-at timestamp is only recorded on success.
func (s *SyncService) PushContact(contact *models.Contact) error {
	props := map[string]string{
		"email":     contact.Email,
		"firstname": contact.FirstName,
		"lastname":  contact.LastName,
		"phone":     contact.Phone,
		"company":   contact.Company,
		"jobtitle":  contact.JobTitle,
	}

	if contact.HubspotID != nil && *contact.HubspotID != "" {
		if err := s.Client.UpdateContact(*contact.HubspotID, props); err != nil {
			return err
		}
	} else {
		hubspotID, err := s.Client.CreateContact(props)
		if err != nil {
			return err
		}
		contact.HubspotID = &hubspotID
	}

	now := time.Now().UTC()
	contact.HubspotSyncedAt = &now
	return s.DB.Model(contact).Updates(map[string]interface{}{
		"hubspot_id":        contact.HubspotID,
		"hubspot_synced_at": now,
	}).Error
}

// SyncActivity pushes one activity to the contact's HubSpot timeline.
// Activity kinds with no engagement mapping are a silent no-op. On success
// the engagement id is attached to the activity row.
func (s *SyncService) SyncActivity(activity *models.Activity, contact *models.Contact) (bool, error) {
	if contact.HubspotID == nil || *contact.HubspotID == "" {
		return false, nil
	}

	var engagementID string
	var err error

	switch activity.ActivityType {
	case models.ActivityEmailSent:
		subject := activity.EmailSubject
		if subject == "" {
			subject = "Email"
		}
		engagementID, err = s.Client.LogEmailEngagement(
			*contact.HubspotID, s.FromEmail, subject, activity.Description, activity.PerformedAt)

	case models.ActivityCallMade, models.ActivityCallAnswered, models.ActivityCallNoAnswer:
		outcome := "NO_ANSWER"
		if activity.ActivityType == models.ActivityCallAnswered {
			outcome = "CONNECTED"
		}
		engagementID, err = s.Client.LogCallEngagement(
			*contact.HubspotID, outcome, activity.Description, 0, activity.PerformedAt)

	case models.ActivityNoteAdded:
		engagementID, err = s.Client.LogNote(
			*contact.HubspotID, activity.Description, activity.PerformedAt)

	default:
		// Unsupported kinds are not pushed.
		return false, nil
	}

	if err != nil {
		return false, err
	}

	activity.HubspotEngagementID = engagementID
	activity.HubspotSynced = true
	return true, s.DB.Model(activity).Updates(map[string]interface{}{
		"hubspot_engagement_id": engagementID,
		"hubspot_synced":        true,
	}).Error
}

// SyncPendingActivities pushes every unsynced activity. Contacts without a
// HubSpot link are skipped; per-item failures are counted and do not abort
// the batch.
func (s *SyncService) SyncPendingActivities() (synced, failed, skipped int, err error) {
	var pending []models.Activity
	if err := s.DB.Where("hubspot_synced = ?", false).Find(&pending).Error; err != nil {
		return 0, 0, 0, err
	}

	for i := range pending {
		var contact models.Contact
		if err := s.DB.First(&contact, pending[i].ContactID).Error; err != nil {
			skipped++
			continue
		}

		ok, err := s.SyncActivity(&pending[i], &contact)
		switch {
		case err != nil:
			failed++
		case ok:
			synced++
		default:
			skipped++
		}
	}

	return synced, failed, skipped, nil
}
