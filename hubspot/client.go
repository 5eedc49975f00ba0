package hubspot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.hubapi.com"

// contactProperties are the remote fields requested on every contact fetch.
var contactProperties = []string{
	"email", "firstname", "lastname", "phone", "company",
	"jobtitle", "linkedinconnectionstatus", "hs_lead_status",
	"industry", "lifecyclestage",
}

// Client talks to the HubSpot REST API using a private app token.
type Client struct {
	AccessToken string
	BaseURL     string
	HTTP        *http.Client
}

func NewClient(accessToken string) *Client {
	return &Client{
		AccessToken: accessToken,
		BaseURL:     defaultBaseURL,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) request(method, endpoint string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.BaseURL+endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("hubspot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("hubspot error: %d - %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("failed to decode hubspot response: %w", err)
		}
	}
	return nil
}

// RemoteContact is one contact record as HubSpot returns it.
type RemoteContact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type contactsPage struct {
	Results []RemoteContact `json:"results"`
	Paging  struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// FetchAllContacts pages through the full remote contact list.
func (c *Client) FetchAllContacts(pageSize int) ([]RemoteContact, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	var contacts []RemoteContact
	after := ""

	for {
		endpoint := "/crm/v3/objects/contacts?limit=" + strconv.Itoa(pageSize) +
			"&properties=" + strings.Join(contactProperties, ",")
		if after != "" {
			endpoint += "&after=" + url.QueryEscape(after)
		}

		var page contactsPage
		if err := c.request(http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		contacts = append(contacts, page.Results...)

		if page.Paging.Next.After == "" {
			break
		}
		after = page.Paging.Next.After
	}

	return contacts, nil
}

// CreateContact creates a remote contact and returns its HubSpot id.
func (c *Client) CreateContact(properties map[string]string) (string, error) {
	body := map[string]interface{}{"properties": properties}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.request(http.MethodPost, "/crm/v3/objects/contacts", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// UpdateContact patches remote contact properties.
func (c *Client) UpdateContact(hubspotID string, properties map[string]string) error {
	body := map[string]interface{}{"properties": properties}
	return c.request(http.MethodPatch, "/crm/v3/objects/contacts/"+hubspotID, body, nil)
}

type engagementResponse struct {
	Engagement struct {
		ID json.Number `json:"id"`
	} `json:"engagement"`
}

func (c *Client) logEngagement(contactID string, engagementType string, metadata map[string]interface{}, timestamp time.Time) (string, error) {
	contactRef, err := strconv.Atoi(contactID)
	if err != nil {
		return "", fmt.Errorf("invalid hubspot contact id %q: %w", contactID, err)
	}

	body := map[string]interface{}{
		"engagement": map[string]interface{}{
			"active":    true,
			"type":      engagementType,
			"timestamp": timestamp.UnixMilli(),
		},
		"associations": map[string]interface{}{
			"contactIds": []int{contactRef},
		},
		"metadata": metadata,
	}

	var out engagementResponse
	if err := c.request(http.MethodPost, "/engagements/v1/engagements", body, &out); err != nil {
		return "", err
	}
	return out.Engagement.ID.String(), nil
}

// LogEmailEngagement records a sent email on the contact's timeline.
func (c *Client) LogEmailEngagement(contactID, fromEmail, subject, body string, timestamp time.Time) (string, error) {
	metadata := map[string]interface{}{
		"from":    map[string]string{"email": fromEmail},
		"to":      []map[string]string{{"email": ""}}, // filled in by HubSpot
		"subject": subject,
		"html":    body,
	}
	return c.logEngagement(contactID, "EMAIL", metadata, timestamp)
}

// LogCallEngagement records a call on the contact's timeline. Outcome is one
// of HubSpot's call statuses (CONNECTED, NO_ANSWER, LEFT_VOICEMAIL).
func (c *Client) LogCallEngagement(contactID, outcome, notes string, durationMS int64, timestamp time.Time) (string, error) {
	metadata := map[string]interface{}{
		"toNumber":             "",
		"fromNumber":           "",
		"status":               outcome,
		"durationMilliseconds": durationMS,
		"body":                 notes,
	}
	return c.logEngagement(contactID, "CALL", metadata, timestamp)
}

// LogNote records a free-form note on the contact's timeline.
func (c *Client) LogNote(contactID, noteBody string, timestamp time.Time) (string, error) {
	metadata := map[string]interface{}{"body": noteBody}
	return c.logEngagement(contactID, "NOTE", metadata, timestamp)
}
