package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mission-sync/internal/model"
	"github.com/sells-group/mission-sync/internal/resilience"
)

const banResponse = `{
  "type": "FeatureCollection",
  "features": [{
    "type": "Feature",
    "geometry": {"type": "Point", "coordinates": [4.8357, 45.764]},
    "properties": {
      "label": "12 Rue de la République 69001 Lyon",
      "score": 0.93,
      "name": "12 Rue de la République",
      "postcode": "69001",
      "city": "Lyon",
      "context": "69, Rhône, Auvergne-Rhône-Alpes"
    }
  }]
}`

func fastGuard() resilience.Guard {
	return resilience.Guard{Retry: resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}}
}

func TestBANGeocoder_Enrich(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/search/", r.URL.Path)
		switch r.URL.Query().Get("postcode") {
		case "69001":
			_, _ = w.Write([]byte(banResponse))
		case "99999":
			_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	g := NewBANGeocoder(GeocoderOptions{BaseURL: srv.URL, Guard: fastGuard()})
	missions := []*model.NormalizedMission{
		{ClientID: "m-1", Addresses: []model.Address{
			{Street: "12 rue de la republique", PostalCode: "69001", City: "Lyon", GeolocStatus: model.GeolocPending},
			{City: "Paris", Location: &model.Location{Lat: 48.85, Lon: 2.35}, GeolocStatus: model.GeolocByPublisher},
		}},
		{ClientID: "m-2", Addresses: []model.Address{
			{City: "Nowhere", PostalCode: "99999", GeolocStatus: model.GeolocPending},
			{City: "Bad", PostalCode: "00000", GeolocStatus: model.GeolocPending},
		}},
	}

	results, err := g.Enrich(context.Background(), model.Publisher{ID: "pub"}, missions)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, int32(3), calls.Load())

	sort.Slice(results, func(i, j int) bool {
		if results[i].ClientID != results[j].ClientID {
			return results[i].ClientID < results[j].ClientID
		}
		return results[i].AddressIndex < results[j].AddressIndex
	})

	lyon := results[0]
	assert.Equal(t, model.GeolocByAPI, lyon.GeolocStatus)
	assert.Equal(t, "69", lyon.DepartmentCode)
	assert.Equal(t, "Rhône", lyon.DepartmentName)
	assert.Equal(t, "Auvergne-Rhône-Alpes", lyon.Region)
	require.NotNil(t, lyon.Location)
	assert.InDelta(t, 45.764, lyon.Location.Lat, 1e-9)
	assert.InDelta(t, 4.8357, lyon.Location.Lon, 1e-9)

	assert.Equal(t, model.GeolocResult{ClientID: "m-2", AddressIndex: 0, GeolocStatus: model.GeolocNotFound}, results[1])
	assert.Equal(t, model.GeolocResult{ClientID: "m-2", AddressIndex: 1, GeolocStatus: model.GeolocFailed}, results[2])
}

func TestBANGeocoder_NothingPending(t *testing.T) {
	g := NewBANGeocoder(GeocoderOptions{BaseURL: "http://127.0.0.1:0"})
	results, err := g.Enrich(context.Background(), model.Publisher{}, []*model.NormalizedMission{
		{ClientID: "m", Addresses: []model.Address{{City: "Paris", Location: &model.Location{Lat: 1, Lon: 1}}}},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLookup_NoData(t *testing.T) {
	g := NewBANGeocoder(GeocoderOptions{})
	res, err := g.lookup(context.Background(), model.Address{Country: "FR"})
	require.NoError(t, err)
	assert.Equal(t, model.GeolocNoData, res.GeolocStatus)
}

func TestApplyGeolocation(t *testing.T) {
	m := &model.Mission{ClientID: "m-1", Addresses: []model.Address{
		{Street: "12 rue de la republique", City: "Lyon", PostalCode: "69001", GeolocStatus: model.GeolocPending},
		{City: "Nowhere", GeolocStatus: model.GeolocPending},
		{City: "Paris", Location: &model.Location{Lat: 48.85, Lon: 2.35}, GeolocStatus: model.GeolocByPublisher},
	}}
	ApplyGeolocation([]*model.Mission{m}, []model.GeolocResult{
		{ClientID: "m-1", AddressIndex: 0, Street: "12 Rue de la République", DepartmentCode: "69", Region: "ARA",
			Location: &model.Location{Lat: 45.764, Lon: 4.8357}, GeolocStatus: model.GeolocByAPI},
		{ClientID: "m-1", AddressIndex: 1, GeolocStatus: model.GeolocNotFound},
		{ClientID: "m-1", AddressIndex: 7, GeolocStatus: model.GeolocByAPI},
		{ClientID: "other", AddressIndex: 0, GeolocStatus: model.GeolocByAPI},
	})

	lyon := m.Addresses[0]
	assert.Equal(t, "12 rue de la republique", lyon.Street)
	assert.Equal(t, "69", lyon.DepartmentCode)
	assert.Equal(t, model.GeolocByAPI, lyon.GeolocStatus)
	assert.JSONEq(t, `{"type":"Point","coordinates":[4.8357,45.764]}`, string(lyon.GeoPoint))

	assert.Equal(t, model.GeolocNotFound, m.Addresses[1].GeolocStatus)
	assert.Nil(t, m.Addresses[1].GeoPoint)

	assert.JSONEq(t, `{"type":"Point","coordinates":[2.35,48.85]}`, string(m.Addresses[2].GeoPoint))
}

func TestPendingAddresses(t *testing.T) {
	done := &model.Mission{ClientID: "a", Addresses: []model.Address{{Location: &model.Location{}, GeolocStatus: model.GeolocByAPI}}}
	pending := &model.Mission{ClientID: "b", Addresses: []model.Address{{City: "Lyon", GeolocStatus: model.GeolocPending}}}
	out := PendingAddresses([]*model.Mission{done, pending})
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ClientID)
}
