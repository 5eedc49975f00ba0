package enrichment

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.lusha.com"

// PersonData is what Lusha returns for a person lookup.
type PersonData struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	JobTitle    string `json:"jobTitle"`
	Phone       string `json:"phoneNumber"`
	LinkedinURL string `json:"linkedinUrl"`
	CompanyName string `json:"companyName"`
}

// CompanyData is what Lusha returns for a company lookup.
type CompanyData struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Website       string `json:"website"`
	EmployeeCount string `json:"employeeCount"`
	Revenue       string `json:"revenue"`
	Country       string `json:"country"`
	Industry      string `json:"mainIndustry"`
}

// LushaClient calls the Lusha enrichment API.
type LushaClient struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

func NewLushaClient(apiKey string) *LushaClient {
	return &LushaClient{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *LushaClient) get(endpoint string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("api_key", c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("lusha request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoData
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("lusha error: %d - %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode lusha response: %w", err)
	}
	return nil
}

// FetchPerson looks a person up by email.
func (c *LushaClient) FetchPerson(email string) (*PersonData, error) {
	var person PersonData
	endpoint := "/person?email=" + url.QueryEscape(email)
	if err := c.get(endpoint, &person); err != nil {
		return nil, err
	}
	return &person, nil
}

// FetchCompany looks a company up by website domain.
func (c *LushaClient) FetchCompany(domain string) (*CompanyData, error) {
	var company CompanyData
	endpoint := "/company?domain=" + url.QueryEscape(domain)
	if err := c.get(endpoint, &company); err != nil {
		return nil, err
	}
	return &company, nil
}
