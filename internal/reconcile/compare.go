package reconcile

import (
	"reflect"
	"slices"
	"time"

	"github.com/sells-group/mission-sync/internal/model"
)

// Strategy decides whether two normalized field values are equal.
type Strategy func(a, b any) bool

// comparator tracks one business field.
type comparator struct {
	field string
	get   func(m *model.Mission) any
	equal Strategy
}

// comparators is the fixed comparison set. Bookkeeping fields (id,
// watermark, timestamps, resolved reference ids) are absent.
var comparators = []comparator{
	{"title", func(m *model.Mission) any { return m.Title }, scalar},
	{"description", func(m *model.Mission) any { return m.Description }, scalar},
	{"descriptionHtml", func(m *model.Mission) any { return m.DescriptionHTML }, scalar},
	{"applicationUrl", func(m *model.Mission) any { return m.ApplicationURL }, scalar},
	{"domain", func(m *model.Mission) any { return m.Domain }, scalar},
	{"domainOriginal", func(m *model.Mission) any { return m.DomainOriginal }, scalar},
	{"activities", func(m *model.Mission) any { return m.Activities }, set},
	{"tags", func(m *model.Mission) any { return m.Tags }, set},
	{"audience", func(m *model.Mission) any { return m.Audience }, set},
	{"softSkills", func(m *model.Mission) any { return m.SoftSkills }, set},
	{"requirements", func(m *model.Mission) any { return m.Requirements }, ordered},
	{"romeSkills", func(m *model.Mission) any { return m.RomeSkills }, ordered},
	{"schedule", func(m *model.Mission) any { return m.Schedule }, scalar},
	{"remote", func(m *model.Mission) any { return string(m.Remote) }, scalar},
	{"openToMinors", func(m *model.Mission) any { return deref(m.OpenToMinors) }, scalar},
	{"reducedMobilityAccessible", func(m *model.Mission) any { return deref(m.ReducedMobilityAccessible) }, scalar},
	{"closeToTransport", func(m *model.Mission) any { return deref(m.CloseToTransport) }, scalar},
	{"startAt", func(m *model.Mission) any { return timeValue(m.StartAt) }, scalar},
	{"endAt", func(m *model.Mission) any { return timeValue(m.EndAt) }, scalar},
	{"postedAt", func(m *model.Mission) any { return timeValue(m.PostedAt) }, scalar},
	{"duration", func(m *model.Mission) any { return deref(m.Duration) }, scalar},
	{"places", func(m *model.Mission) any { return deref(m.Places) }, scalar},
	{"priority", func(m *model.Mission) any { return m.Priority }, scalar},
	{"metadata", func(m *model.Mission) any { return m.Metadata }, scalar},
	{"compensation", func(m *model.Mission) any { return compensationValue(m.Compensation) }, nested},
	{"snu", func(m *model.Mission) any { return deref(m.Snu) }, scalar},
	{"snuPlaces", func(m *model.Mission) any { return deref(m.SnuPlaces) }, scalar},
	{"statusCode", func(m *model.Mission) any { return string(m.StatusCode) }, scalar},
	{"statusComment", func(m *model.Mission) any { return m.StatusComment }, scalar},
	{"organizationClientId", func(m *model.Mission) any { return m.OrganizationClientID }, scalar},
	{"organizationName", func(m *model.Mission) any { return m.OrganizationName }, scalar},
	{"organizationLogo", func(m *model.Mission) any { return m.OrganizationLogo }, scalar},
	{"addresses", func(m *model.Mission) any { return addressValues(m.Addresses) }, nested},
	{"deletedAt", func(m *model.Mission) any { return timeValue(m.DeletedAt) }, scalar},
}

// TrackedFields lists the compared field names in table order.
func TrackedFields() []string {
	out := make([]string, len(comparators))
	for i, c := range comparators {
		out[i] = c.field
	}
	return out
}

// Diff returns the changed business fields between prev and cur. An empty
// result means the records are equivalent.
func Diff(prev, cur *model.Mission) model.Changes {
	changes := model.Changes{}
	for _, c := range comparators {
		a, b := c.get(prev), c.get(cur)
		if !c.equal(a, b) {
			changes[c.field] = model.FieldChange{Previous: a, Current: b}
		}
	}
	return changes
}

func scalar(a, b any) bool {
	ta, okA := a.(time.Time)
	tb, okB := b.(time.Time)
	if okA && okB {
		return ta.Equal(tb)
	}
	return a == b
}

// set ignores order and treats nil and empty alike.
func set(a, b any) bool {
	x, _ := a.([]string)
	y, _ := b.([]string)
	if len(x) != len(y) {
		return false
	}
	counts := make(map[string]int, len(x))
	for _, s := range x {
		counts[s]++
	}
	for _, s := range y {
		if counts[s] == 0 {
			return false
		}
		counts[s]--
	}
	return true
}

func ordered(a, b any) bool {
	x, _ := a.([]string)
	y, _ := b.([]string)
	return slices.Equal(x, y)
}

func nested(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// deref returns the pointee, or nil so absent values compare and serialise
// as null.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// timeValue truncates to the microsecond precision of the store so a
// round-tripped record compares equal.
func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Truncate(time.Microsecond)
}

type compensation struct {
	Amount *float64 `json:"amount,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	Type   string   `json:"type,omitempty"`
}

func compensationValue(c model.Compensation) any {
	if c.Amount == nil && c.Unit == "" && c.Type == "" {
		return nil
	}
	return compensation(c)
}

// address is the compared view of an address; the derived GeoJSON point is
// excluded since it follows from the location.
type address struct {
	Street         string             `json:"street,omitempty"`
	City           string             `json:"city,omitempty"`
	PostalCode     string             `json:"postalCode,omitempty"`
	DepartmentCode string             `json:"departmentCode,omitempty"`
	DepartmentName string             `json:"departmentName,omitempty"`
	Region         string             `json:"region,omitempty"`
	Country        string             `json:"country,omitempty"`
	Location       *model.Location    `json:"location,omitempty"`
	GeolocStatus   model.GeolocStatus `json:"geolocStatus,omitempty"`
}

func addressValues(in []model.Address) any {
	if len(in) == 0 {
		return nil
	}
	out := make([]address, len(in))
	for i, a := range in {
		out[i] = address{
			Street:         a.Street,
			City:           a.City,
			PostalCode:     a.PostalCode,
			DepartmentCode: a.DepartmentCode,
			DepartmentName: a.DepartmentName,
			Region:         a.Region,
			Country:        a.Country,
			Location:       a.Location,
			GeolocStatus:   a.GeolocStatus,
		}
	}
	return out
}
