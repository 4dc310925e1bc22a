package organization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mission-sync/internal/model"
)

func TestResolveIdentity_Priority(t *testing.T) {
	tests := []struct {
		name   string
		fields model.OrganizationFields
		key    string
		source Source
	}{
		{
			name:   "client id wins over everything",
			fields: model.OrganizationFields{ClientID: "org-1", ID: "legacy", RNA: "W751234567", Name: "Les Amis"},
			key:    "org-1",
			source: SourceClientID,
		},
		{
			name:   "organization id fallback",
			fields: model.OrganizationFields{ID: "legacy", RNA: "W751234567"},
			key:    "legacy",
			source: SourceOrganizationID,
		},
		{
			name:   "normalized RNA over name",
			fields: model.OrganizationFields{RNA: " w75-1234567 ", Name: "Les Amis"},
			key:    "W751234567",
			source: SourceRNA,
		},
		{
			name:   "siret over siren and name",
			fields: model.OrganizationFields{Siren: "732 829 320 00074", Name: "Les Amis"},
			key:    "73282932000074",
			source: SourceSiret,
		},
		{
			name:   "standalone siren",
			fields: model.OrganizationFields{Siren: "552100554", Name: "Les Amis"},
			key:    "552100554",
			source: SourceSiren,
		},
		{
			name:   "invalid siren falls back to name slug",
			fields: model.OrganizationFields{Siren: "123456789", Name: "Les Amis de l'École !"},
			key:    "les-amis-de-l-ecole",
			source: SourceName,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ResolveIdentity(tt.fields)
			require.True(t, ok)
			assert.Equal(t, tt.key, id.Key)
			assert.Equal(t, tt.source, id.Source)
		})
	}
}

func TestResolveIdentity_SiretStoresSirenPrefix(t *testing.T) {
	id, ok := ResolveIdentity(model.OrganizationFields{Siret: "73282932000074"})
	require.True(t, ok)
	assert.Equal(t, "73282932000074", id.Siret)
	assert.Equal(t, "732829320", id.Siren)
}

func TestResolveIdentity_NoSignal(t *testing.T) {
	_, ok := ResolveIdentity(model.OrganizationFields{Name: "  !! "})
	assert.False(t, ok)
}

func TestResolveIdentity_Deterministic(t *testing.T) {
	f := model.OrganizationFields{RNA: "w751234567", Name: "Les Amis"}
	first, _ := ResolveIdentity(f)
	second, _ := ResolveIdentity(f)
	assert.Equal(t, first, second)
}

func TestValidSirenSiret(t *testing.T) {
	assert.True(t, ValidSiren("732829320"))
	assert.False(t, ValidSiren("123456789"))
	assert.False(t, ValidSiren("73282932"))
	assert.True(t, ValidSiret("55210055400013"))
	assert.False(t, ValidSiret("12345678901234"))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "education-pour-tous", Slugify("Éducation pour tous"))
	assert.Equal(t, "solidarite-insertion", Slugify("Solidarité, insertion"))
	assert.Equal(t, "coeur-de-ville", Slugify("  Cœur de ville  "))
	assert.Empty(t, Slugify("--"))
}

func TestResolve_BuildsPayloadWithDefaultLogo(t *testing.T) {
	n := &model.NormalizedMission{
		ClientID: "m-1",
		Organization: model.OrganizationFields{
			Name:          "Les Amis",
			RNA:           "W751234567",
			Beneficiaries: []string{"Jeunes"},
			Networks:      []string{"Réseau A"},
		},
	}
	pub := model.Publisher{ID: "pub-1", DefaultLogo: "https://cdn.example.org/pub-1.png"}

	org := Resolve(n, pub)
	require.NotNil(t, org)
	assert.Equal(t, "W751234567", org.ClientID)
	assert.Equal(t, "pub-1", org.PublisherID)
	assert.Equal(t, "https://cdn.example.org/pub-1.png", org.Logo)
	assert.Equal(t, []string{"Jeunes"}, org.Beneficiaries)
	assert.Equal(t, []string{"Réseau A"}, org.Networks)
}

func TestResolve_NoIdentity(t *testing.T) {
	n := &model.NormalizedMission{ClientID: "m-1"}
	assert.Nil(t, Resolve(n, model.Publisher{ID: "pub-1"}))
}
