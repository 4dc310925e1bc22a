package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mission-sync/internal/model"
)

func TestNormalize_FullRecord(t *testing.T) {
	raw := model.RawRecord{
		"clientId":       "m-1",
		"title":          "Aide aux devoirs",
		"description":    "Accompagner des collégiens",
		"applicationUrl": "https://example.org/apply/m-1",
		"domain":         "Education pour tous",
		"tags":           map[string]any{"value": []any{"soutien", "jeunesse"}},
		"soft_skills":    "écoute, patience",
		"openToMinor":    "yes",
		"remote":         "Possible",
		"startAt":        "2024-01-10T09:00:00",
		"endAt":          "2024-04-10T09:00:00Z",
		"places":         "4",
		"addresses": []any{
			map[string]any{"street": "1 rue de Rivoli", "city": "Paris", "postalCode": "75001"},
			map[string]any{"city": "Lyon", "location": map[string]any{"lat": "45.76", "lon": "4.83"}},
		},
		"organizationName":          "Les Amis",
		"organizationRNA":           "w751234567",
		"organizationBeneficiares":  []any{"Jeunes", " "},
		"organizationNetwork":       "Réseau A,Réseau B",
	}

	n, err := Normalize(raw)
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, "m-1", n.ClientID)
	assert.Equal(t, []string{"soutien", "jeunesse"}, n.Tags)
	assert.Equal(t, []string{"écoute", "patience"}, n.SoftSkills)
	require.NotNil(t, n.OpenToMinors)
	assert.True(t, *n.OpenToMinors)
	assert.Equal(t, model.RemotePossible, n.Remote)
	assert.Equal(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), *n.StartAt)
	require.NotNil(t, n.Duration)
	assert.Equal(t, 3, *n.Duration)
	assert.Equal(t, 4, *n.Places)

	require.Len(t, n.Addresses, 2)
	assert.Equal(t, model.GeolocPending, n.Addresses[0].GeolocStatus)
	assert.Nil(t, n.Addresses[0].Location)
	assert.Equal(t, model.GeolocByPublisher, n.Addresses[1].GeolocStatus)
	assert.Equal(t, 45.76, n.Addresses[1].Location.Lat)

	assert.Equal(t, "Les Amis", n.Organization.Name)
	assert.Equal(t, []string{"Jeunes"}, n.Organization.Beneficiaries)
	assert.Equal(t, []string{"Réseau A", "Réseau B"}, n.Organization.Networks)
}

func TestNormalize_TypoFallbackPrefersCorrectName(t *testing.T) {
	raw := model.RawRecord{
		"softSkills":  "a",
		"soft_skills": "b",
	}
	n, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, n.SoftSkills)

	raw = model.RawRecord{"softSkills": " ", "soft_skills": "b"}
	n, err = Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, n.SoftSkills)
}

func TestNormalize_NonStringTitleFails(t *testing.T) {
	raw := model.RawRecord{
		"clientId": "m-2",
		"title":    map[string]any{"b": "Bold"},
	}
	n, err := Normalize(raw)
	assert.Nil(t, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")
}

func TestNormalize_NoDatesMeansNoDuration(t *testing.T) {
	n, err := Normalize(model.RawRecord{"clientId": "x", "startAt": "2024-01-01"})
	require.NoError(t, err)
	assert.Nil(t, n.Duration)
}

func TestNormalize_FlatAddress(t *testing.T) {
	n, err := Normalize(model.RawRecord{"clientId": "x", "address": "3 place Bellecour", "city": "Lyon", "postalCode": "69002"})
	require.NoError(t, err)
	require.Len(t, n.Addresses, 1)
	assert.Equal(t, "3 place Bellecour", n.Addresses[0].Street)
	assert.Equal(t, "69002", n.Addresses[0].PostalCode)
}

func TestNormalize_AddressWrapper(t *testing.T) {
	raw := model.RawRecord{
		"clientId":  "x",
		"addresses": map[string]any{"address": map[string]any{"city": "Nantes"}},
	}
	n, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, n.Addresses, 1)
	assert.Equal(t, "Nantes", n.Addresses[0].City)
}

func TestNormalize_EmptyListIsAbsent(t *testing.T) {
	n, err := Normalize(model.RawRecord{"clientId": "x", "tags": " , "})
	require.NoError(t, err)
	assert.Nil(t, n.Tags)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "clientId=abc", Describe(model.RawRecord{"clientId": "abc"}))
	assert.Equal(t, "<no clientId>", Describe(model.RawRecord{}))
}
