// Package mission assembles persisted-shape missions from normalized feed
// records, publisher context and the prior stored record.
package mission

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/mission-sync/internal/model"
	"github.com/sells-group/mission-sync/internal/moderation"
	"github.com/sells-group/mission-sync/internal/organization"
)

// Assembler builds candidate missions for one publisher run.
type Assembler struct {
	Publisher model.Publisher
	Policy    moderation.Policy
}

// Assemble composes moderation, organization identity and the prior record
// into a candidate. prior is nil for a clientId never seen before. Bookkeeping
// fields (watermark, updatedAt) are left to the writer.
func (a Assembler) Assemble(n *model.NormalizedMission, prior *model.Mission) (m *model.Mission, err error) {
	if n == nil {
		return nil, eris.New("mission: nil record")
	}
	defer func() {
		if p := recover(); p != nil {
			m = nil
			err = eris.Errorf("mission: assemble %q: panic: %v", n.ClientID, p)
		}
	}()

	decision := moderation.Validate(n, a.Policy)

	m = &model.Mission{
		PublisherID:     a.Publisher.ID,
		ClientID:        n.ClientID,
		Title:           n.Title,
		Description:     n.Description,
		DescriptionHTML: n.DescriptionHTML,
		ApplicationURL:  n.ApplicationURL,

		Domain:         decision.Domain,
		DomainOriginal: decision.DomainOriginal,
		Activities:     n.Activities,

		Tags:         n.Tags,
		Audience:     n.Audience,
		SoftSkills:   n.SoftSkills,
		Requirements: n.Requirements,
		RomeSkills:   n.RomeSkills,

		Schedule:                  n.Schedule,
		Remote:                    n.Remote,
		OpenToMinors:              n.OpenToMinors,
		ReducedMobilityAccessible: n.ReducedMobilityAccessible,
		CloseToTransport:          n.CloseToTransport,

		StartAt:  n.StartAt,
		EndAt:    n.EndAt,
		PostedAt: n.PostedAt,
		Duration: n.Duration,
		Places:   n.Places,

		Priority:     n.Priority,
		Metadata:     n.Metadata,
		Compensation: n.Compensation,
		Snu:          n.Snu,
		SnuPlaces:    n.SnuPlaces,

		StatusCode:    decision.StatusCode,
		StatusComment: decision.StatusComment,

		Addresses: cloneAddresses(n.Addresses),
		Source:    n,
	}

	if org := organization.Resolve(n, a.Publisher); org != nil {
		m.Organization = org
		m.OrganizationClientID = org.ClientID
		m.OrganizationName = org.Name
		m.OrganizationLogo = org.Logo
	} else {
		m.OrganizationLogo = a.Publisher.DefaultLogo
	}

	if prior != nil {
		carryForward(m, prior)
	}
	return m, nil
}

// carryForward keeps what the feed does not own: the stable id, creation
// time, reference ids, organization id and geolocation of unchanged
// addresses. DeletedAt is cleared because presence in the feed undeletes.
func carryForward(m, prior *model.Mission) {
	m.ID = prior.ID
	m.CreatedAt = prior.CreatedAt
	m.LastSyncAt = prior.LastSyncAt
	m.DeletedAt = nil

	if prior.Domain == m.Domain {
		m.DomainID = prior.DomainID
	}
	if prior.OrganizationClientID == m.OrganizationClientID {
		m.OrganizationID = prior.OrganizationID
	}

	for i := range m.Addresses {
		a := &m.Addresses[i]
		if a.GeolocStatus != model.GeolocPending {
			continue
		}
		for _, old := range prior.Addresses {
			if !a.SameAs(old) || !geocoded(old.GeolocStatus) {
				continue
			}
			a.DepartmentCode = firstNonEmpty(a.DepartmentCode, old.DepartmentCode)
			a.DepartmentName = firstNonEmpty(a.DepartmentName, old.DepartmentName)
			a.Region = firstNonEmpty(a.Region, old.Region)
			a.Location = old.Location
			a.GeoPoint = old.GeoPoint
			a.GeolocStatus = old.GeolocStatus
			break
		}
	}
}

// geocoded reports whether a prior lookup settled the address. Failed
// lookups are retried.
func geocoded(s model.GeolocStatus) bool {
	return s == model.GeolocByAPI || s == model.GeolocNotFound || s == model.GeolocNoData
}

func cloneAddresses(in []model.Address) []model.Address {
	if in == nil {
		return nil
	}
	out := make([]model.Address, len(in))
	copy(out, in)
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
