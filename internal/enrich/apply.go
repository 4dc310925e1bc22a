package enrich

import (
	"encoding/json"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/mission-sync/internal/model"
)

// ApplyGeolocation writes geocoding rows onto the matching mission addresses
// and derives the GeoJSON point of every located address. The feed's postal
// fields are kept as published so the next run still recognises the address.
func ApplyGeolocation(missions []*model.Mission, results []model.GeolocResult) {
	byClient := make(map[string]*model.Mission, len(missions))
	for _, m := range missions {
		byClient[m.ClientID] = m
	}

	for _, r := range results {
		m, ok := byClient[r.ClientID]
		if !ok || r.AddressIndex < 0 || r.AddressIndex >= len(m.Addresses) {
			continue
		}
		a := &m.Addresses[r.AddressIndex]
		a.GeolocStatus = r.GeolocStatus
		if r.GeolocStatus != model.GeolocByAPI {
			continue
		}
		a.Location = r.Location
		a.DepartmentCode = firstNonEmpty(a.DepartmentCode, r.DepartmentCode)
		a.DepartmentName = firstNonEmpty(a.DepartmentName, r.DepartmentName)
		a.Region = firstNonEmpty(a.Region, r.Region)
	}

	for _, m := range missions {
		for i := range m.Addresses {
			a := &m.Addresses[i]
			if a.Location == nil {
				a.GeoPoint = nil
				continue
			}
			a.GeoPoint = GeoPoint(*a.Location)
		}
	}
}

// GeoPoint encodes a location as a GeoJSON Point. It returns nil when the
// point cannot be encoded.
func GeoPoint(loc model.Location) json.RawMessage {
	pt := geom.NewPointFlat(geom.XY, []float64{loc.Lon, loc.Lat})
	data, err := geojson.Marshal(pt)
	if err != nil {
		return nil
	}
	return data
}

// PendingAddresses returns, for each mission that still has an address to
// geocode, a normalized view carrying its client id and addresses.
func PendingAddresses(missions []*model.Mission) []*model.NormalizedMission {
	var out []*model.NormalizedMission
	for _, m := range missions {
		for _, a := range m.Addresses {
			if a.GeolocStatus == model.GeolocPending && a.Location == nil {
				out = append(out, &model.NormalizedMission{ClientID: m.ClientID, Addresses: m.Addresses})
				break
			}
		}
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
