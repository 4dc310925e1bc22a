package normalize

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mission-sync/internal/model"
)

// reader pulls typed values out of a raw map and keeps the first decoding error.
type reader struct {
	m   map[string]any
	err error
}

func (r *reader) str(c chain) string {
	s, err := String(c.lookup(r.m))
	if err != nil && r.err == nil {
		r.err = eris.Wrapf(err, "field %s", c[0])
	}
	return s
}

func (r *reader) list(c chain) []string { return List(c.lookup(r.m)) }

// Normalize decodes one raw feed record. A record that cannot be decoded
// yields a nil mission and an error; it must not stop the batch.
func Normalize(raw model.RawRecord) (n *model.NormalizedMission, err error) {
	defer func() {
		if p := recover(); p != nil {
			n = nil
			err = eris.Errorf("normalize: panic: %v", p)
		}
	}()

	r := &reader{m: raw}
	n = &model.NormalizedMission{
		ClientID:        r.str(fieldClientID),
		Title:           r.str(fieldTitle),
		Description:     r.str(fieldDescription),
		DescriptionHTML: r.str(fieldDescriptionHTML),
		ApplicationURL:  r.str(fieldApplicationURL),
		Domain:          r.str(fieldDomain),
		Activities:      r.list(fieldActivities),
		Tags:            r.list(fieldTags),
		Audience:        r.list(fieldAudience),
		SoftSkills:      r.list(fieldSoftSkills),
		Requirements:    r.list(fieldRequirements),
		RomeSkills:      r.list(fieldRomeSkills),
		Schedule:        r.str(fieldSchedule),
		Remote:          remotePolicy(r.str(fieldRemote)),

		OpenToMinors:              Bool(fieldOpenToMinors.lookup(raw)),
		ReducedMobilityAccessible: Bool(fieldReducedMobility.lookup(raw)),
		CloseToTransport:          Bool(fieldCloseTransport.lookup(raw)),

		StartAt:  Time(fieldStartAt.lookup(raw)),
		EndAt:    Time(fieldEndAt.lookup(raw)),
		PostedAt: Time(fieldPostedAt.lookup(raw)),
		Places:   Int(fieldPlaces.lookup(raw)),

		Priority: r.str(fieldPriority),
		Metadata: r.str(fieldMetadata),
		Compensation: model.Compensation{
			Amount: Float(fieldCompAmount.lookup(raw)),
			Unit:   r.str(fieldCompUnit),
			Type:   r.str(fieldCompType),
		},
		Snu:       Bool(fieldSnu.lookup(raw)),
		SnuPlaces: Int(fieldSnuPlaces.lookup(raw)),

		Organization: organizationFields(r),
	}
	n.Duration = MonthsBetween(n.StartAt, n.EndAt)
	n.Addresses = addresses(raw)

	if r.err != nil {
		return nil, eris.Wrapf(r.err, "normalize: record %q", n.ClientID)
	}
	return n, nil
}

// OrganizationFields decodes only the organization attributes of a record.
func OrganizationFields(raw model.RawRecord) (model.OrganizationFields, error) {
	r := &reader{m: raw}
	f := organizationFields(r)
	return f, r.err
}

func organizationFields(r *reader) model.OrganizationFields {
	return model.OrganizationFields{
		ClientID:      r.str(orgClientID),
		ID:            r.str(orgID),
		Name:          r.str(orgName),
		RNA:           r.str(orgRNA),
		Siren:         r.str(orgSiren),
		Siret:         r.str(orgSiret),
		LegalStatus:   r.str(orgLegalStatus),
		Type:          r.str(orgType),
		Description:   r.str(orgDescription),
		URL:           r.str(orgURL),
		Logo:          r.str(orgLogo),
		Email:         r.str(orgEmail),
		Phone:         r.str(orgPhone),
		FullAddress:   r.str(orgFullAddress),
		City:          r.str(orgCity),
		PostalCode:    r.str(orgPostalCode),
		Beneficiaries: r.list(orgBeneficiaries),
		Networks:      r.list(orgNetworks),
	}
}

func remotePolicy(s string) model.RemotePolicy {
	switch strings.ToLower(s) {
	case "":
		return ""
	case "full", "total", "100%":
		return model.RemoteFull
	case "possible", "partial", "yes", "oui", "true":
		return model.RemotePossible
	default:
		return model.RemoteNo
	}
}

// addresses reads the addresses block, falling back to flat top-level fields.
func addresses(raw model.RawRecord) []model.Address {
	var entries []map[string]any
	switch t := fieldAddresses.lookup(raw).(type) {
	case []any:
		for _, el := range t {
			if m, ok := el.(map[string]any); ok {
				entries = append(entries, m)
			}
		}
	case map[string]any:
		if inner, ok := t["address"]; ok {
			return addresses(model.RawRecord{"addresses": wrapList(inner)})
		}
		entries = append(entries, t)
	}
	if entries == nil && hasFlatAddress(raw) {
		entries = append(entries, raw)
	}

	var out []model.Address
	for _, m := range entries {
		if a, ok := address(m); ok {
			out = append(out, a)
		}
	}
	return out
}

func wrapList(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{v}
}

func hasFlatAddress(raw model.RawRecord) bool {
	for _, c := range flatAddressKeys {
		if v := c.lookup(raw); v != nil {
			if _, isStr := v.(string); isStr {
				return true
			}
		}
	}
	return false
}

func address(m map[string]any) (model.Address, bool) {
	r := &reader{m: m}
	a := model.Address{
		Street:         r.str(addrStreet),
		City:           r.str(addrCity),
		PostalCode:     r.str(addrPostalCode),
		DepartmentCode: r.str(addrDepartmentCode),
		DepartmentName: r.str(addrDepartmentName),
		Region:         r.str(addrRegion),
		Country:        r.str(addrCountry),
	}
	if r.err != nil {
		return model.Address{}, false
	}

	loc := m
	if nested, ok := m["location"].(map[string]any); ok {
		loc = nested
	}
	lat, lon := Float(addrLat.lookup(loc)), Float(addrLon.lookup(loc))
	if lat != nil && lon != nil && validCoordinates(*lat, *lon) {
		a.Location = &model.Location{Lat: *lat, Lon: *lon}
		a.GeolocStatus = model.GeolocByPublisher
	}

	if a.Street == "" && a.City == "" && a.PostalCode == "" && a.Location == nil {
		return model.Address{}, false
	}
	if a.Location == nil {
		a.GeolocStatus = model.GeolocPending
	}
	return a, true
}

func validCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 && !(lat == 0 && lon == 0)
}

// Describe renders a short identification of a raw record for logs.
func Describe(raw model.RawRecord) string {
	id, _ := String(fieldClientID.lookup(raw))
	if id == "" {
		return "<no clientId>"
	}
	return fmt.Sprintf("clientId=%s", id)
}
