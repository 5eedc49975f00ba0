package sendgrid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.sendgrid.com/v3"

// Email is one outbound message.
type Email struct {
	To         string
	ToName     string
	Subject    string
	HTML       string
	Text       string
	ReplyTo    string
	CustomArgs map[string]string
}

// Mailer sends an email and returns the provider message id.
type Mailer interface {
	Send(email Email) (string, error)
}

// Client sends mail through the SendGrid v3 API.
type Client struct {
	APIKey    string
	FromEmail string
	FromName  string
	BaseURL   string
	HTTP      *http.Client
}

func NewClient(apiKey, fromEmail, fromName string) *Client {
	return &Client{
		APIKey:    apiKey,
		FromEmail: fromEmail,
		FromName:  fromName,
		BaseURL:   defaultBaseURL,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

type personalization struct {
	To         []emailAddress    `json:"to"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendPayload struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	ReplyTo          emailAddress      `json:"reply_to"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
	TrackingSettings map[string]map[string]bool `json:"tracking_settings"`
}

// Send delivers a single email with open and click tracking enabled. The
// returned id comes from the X-Message-Id response header.
func (c *Client) Send(email Email) (string, error) {
	replyTo := email.ReplyTo
	if replyTo == "" {
		replyTo = c.FromEmail
	}

	payload := sendPayload{
		Personalizations: []personalization{{
			To:         []emailAddress{{Email: email.To, Name: email.ToName}},
			CustomArgs: email.CustomArgs,
		}},
		From:    emailAddress{Email: c.FromEmail, Name: c.FromName},
		ReplyTo: emailAddress{Email: replyTo},
		Subject: email.Subject,
		Content: []content{},
		TrackingSettings: map[string]map[string]bool{
			"click_tracking": {"enable": true},
			"open_tracking":  {"enable": true},
		},
	}

	// SendGrid requires text/plain before text/html.
	if email.Text != "" {
		payload.Content = append(payload.Content, content{Type: "text/plain", Value: email.Text})
	}
	payload.Content = append(payload.Content, content{Type: "text/html", Value: email.HTML})

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("sendgrid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("sendgrid error: %d - %s", resp.StatusCode, string(respBody))
	}

	return resp.Header.Get("X-Message-Id"), nil
}
