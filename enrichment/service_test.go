package enrichment

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"outreachcrm/icp"
	"outreachcrm/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:enrich_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Contact{}))
	return db
}

func newTestService(t *testing.T, baseURL string) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	client := NewLushaClient("test-key")
	client.BaseURL = baseURL
	return NewService(db, client), db
}

func lushaServer(t *testing.T, person *PersonData, company *CompanyData) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("api_key"))
		switch r.URL.Path {
		case "/person":
			if person == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(person)
		case "/company":
			if company == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(company)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestEnrichContactFillsEmptyFieldsOnly(t *testing.T) {
	server := lushaServer(t,
		&PersonData{
			FirstName: "Claire",
			LastName:  "Martin",
			JobTitle:  "Sustainability Manager",
			Phone:     "+33 1 23 45 67 89",
		},
		&CompanyData{
			Name:          "Recyclage Nord",
			EmployeeCount: "250-500",
			Country:       "France",
			Website:       "https://recyclage-nord.fr",
		})
	defer server.Close()

	service, db := newTestService(t, server.URL)

	contact := &models.Contact{
		Email:     "claire@recyclage-nord.fr",
		FirstName: "Claire-Hélène", // manual entry must survive
	}
	require.NoError(t, db.Create(contact).Error)

	require.NoError(t, service.EnrichContact(contact))

	assert.Equal(t, "Claire-Hélène", contact.FirstName)
	assert.Equal(t, "Martin", contact.LastName)
	assert.Equal(t, "Sustainability Manager", contact.JobTitle)
	assert.Equal(t, "Recyclage Nord", contact.Company)
	assert.Equal(t, "250-500", contact.CompanySize)
	assert.Equal(t, "France", contact.CompanyCountry)
}

func TestEnrichContactInfersCriteriaAndRescores(t *testing.T) {
	server := lushaServer(t,
		&PersonData{CompanyName: "NordPyro"},
		&CompanyData{
			Name:          "NordPyro",
			Description:   "Chemical recycling via pyrolysis, ISCC certified plant",
			EmployeeCount: "250+",
		})
	defer server.Close()

	service, db := newTestService(t, server.URL)

	contact := &models.Contact{Email: "ceo@nordpyro.com"}
	require.NoError(t, db.Create(contact).Error)

	require.NoError(t, service.EnrichContact(contact))

	assert.Equal(t, icp.SegmentChemicalRecycling, contact.CompanySegment)
	assert.True(t, contact.EmployeesOver100)
	assert.True(t, contact.ISCCCertified)

	// ISCC +3, segment +2, employees +1
	assert.Equal(t, 6, contact.ICPScore)
	assert.Equal(t, icp.Tier2, contact.ICPTier)

	var stored models.Contact
	require.NoError(t, db.First(&stored, contact.ID).Error)
	assert.Equal(t, 6, stored.ICPScore)
}

func TestEnrichContactNoData(t *testing.T) {
	server := lushaServer(t, nil, nil)
	defer server.Close()

	service, db := newTestService(t, server.URL)
	contact := &models.Contact{Email: "unknown@nowhere-known.com"}
	require.NoError(t, db.Create(contact).Error)

	err := service.EnrichContact(contact)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestEnrichContactInfersFromNotesWithoutProviderData(t *testing.T) {
	server := lushaServer(t, nil, nil)
	defer server.Close()

	service, db := newTestService(t, server.URL)

	contact := &models.Contact{
		Email: "ops@unknown-plant.fr",
		Notes: "Operates a chemical recycling pyrolysis plant, ISCC certified",
	}
	require.NoError(t, db.Create(contact).Error)

	// The provider had nothing, but inference and rescoring still ran on the
	// manually entered notes.
	err := service.EnrichContact(contact)
	assert.ErrorIs(t, err, ErrNoData)

	assert.Equal(t, icp.SegmentChemicalRecycling, contact.CompanySegment)
	assert.True(t, contact.ISCCCertified)

	// ISCC +3, segment +2
	assert.Equal(t, 5, contact.ICPScore)
	assert.Equal(t, icp.Tier2, contact.ICPTier)

	var stored models.Contact
	require.NoError(t, db.First(&stored, contact.ID).Error)
	assert.Equal(t, 5, stored.ICPScore)
}

func TestEnrichContactSurvivesPersonLookupFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/person" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(CompanyData{Name: "Recyclage Nord", Country: "France"})
	}))
	defer server.Close()

	service, db := newTestService(t, server.URL)
	contact := &models.Contact{Email: "claire@recyclage-nord.fr"}
	require.NoError(t, db.Create(contact).Error)

	require.NoError(t, service.EnrichContact(contact))
	assert.Equal(t, "Recyclage Nord", contact.Company)
	assert.Equal(t, "France", contact.CompanyCountry)
}

func TestInferCriteriaEmployeeCountBoundary(t *testing.T) {
	s := &Service{}

	exactly100 := &models.Contact{CompanySize: "100-500"}
	s.inferCriteria(exactly100)
	assert.True(t, exactly100.EmployeesOver100)

	below := &models.Contact{CompanySize: "50-99"}
	s.inferCriteria(below)
	assert.False(t, below.EmployeesOver100)
}

func TestInferCriteriaISCCInProgress(t *testing.T) {
	s := &Service{}

	contact := &models.Contact{Notes: "ISCC certification pending audit"}
	s.inferCriteria(contact)
	assert.True(t, contact.ISCCInProgress)
	assert.False(t, contact.ISCCCertified)
}

func TestInferCriteriaScansCompanyAndTitle(t *testing.T) {
	s := &Service{}

	contact := &models.Contact{JobTitle: "EPR Compliance Manager"}
	s.inferCriteria(contact)
	assert.True(t, contact.EPRPPWRExposure)
}

func TestEnrichBatchIsolatesFailures(t *testing.T) {
	server := lushaServer(t, &PersonData{FirstName: "Known"}, nil)
	defer server.Close()

	service, db := newTestService(t, server.URL)

	contact := &models.Contact{Email: "known@corp.com"}
	require.NoError(t, db.Create(contact).Error)

	result, err := service.EnrichBatch([]uint{contact.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Enriched)
	assert.Equal(t, 1, result.Errors)
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		email   string
		company string
		want    string
	}{
		{"claire@recyclage-nord.fr", "", "recyclage-nord.fr"},
		{"someone@gmail.com", "Acme GmbH", "acme.com"},
		{"someone@yahoo.com", "", ""},
		{"", "Nord Pyro Ltd", "nordpyro.com"},
		{"bad-address", "", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, extractDomain(tc.email, tc.company), "email=%q company=%q", tc.email, tc.company)
	}
}

func TestParseEmployeeCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"100-500", 100, true},
		{"250+ employees", 250, true},
		{"50", 50, true},
		{"about 1200 people", 1200, true},
		{"unknown", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		got, ok := parseEmployeeCount(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if ok {
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		}
	}
}
