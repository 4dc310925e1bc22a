package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/mission-sync/internal/model"
)

func TestRegistryVerifier_Verify(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("q") {
		case "732829320":
			_, _ = w.Write([]byte(`{"results":[{"siren":"732829320","nom_complet":"LES AMIS"}],"total_results":1}`))
		case "W751234567":
			_, _ = w.Write([]byte(`{"results":[{"siren":"552100554","nom_complet":"ASSO","complements":{"identifiant_association":"W751234567"}}],"total_results":1}`))
		case "552100554":
			_, _ = w.Write([]byte(`{"results":[],"total_results":0}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	missions := []*model.NormalizedMission{
		{ClientID: "1", Organization: model.OrganizationFields{Siret: "73282932000074"}},
		{ClientID: "2", Organization: model.OrganizationFields{Siren: "732829320"}},
		{ClientID: "3", Organization: model.OrganizationFields{RNA: "w75-1234567"}},
		{ClientID: "4", Organization: model.OrganizationFields{Siren: "552100554"}},
		{ClientID: "5", Organization: model.OrganizationFields{Siren: "356000000"}},
		{ClientID: "6", Organization: model.OrganizationFields{Name: "No registry"}},
	}

	v := NewRegistryVerifier(VerifierOptions{BaseURL: srv.URL, Guard: fastGuard()})
	v.Verify(context.Background(), missions)

	assert.Equal(t, model.VerificationVerified, missions[0].Organization.VerificationStatus)
	assert.Equal(t, "LES AMIS", missions[0].Organization.VerifiedName)
	assert.Equal(t, model.VerificationVerified, missions[1].Organization.VerificationStatus)
	assert.Equal(t, model.VerificationVerified, missions[2].Organization.VerificationStatus)
	assert.Equal(t, model.VerificationNotFound, missions[3].Organization.VerificationStatus)
	assert.Equal(t, model.VerificationError, missions[4].Organization.VerificationStatus)
	assert.Equal(t, model.VerificationPending, missions[5].Organization.VerificationStatus)

	// one lookup per distinct number
	assert.Equal(t, int32(4), calls.Load())
}
