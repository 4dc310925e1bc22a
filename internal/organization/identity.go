// Package organization resolves a stable identity for feed organizations and
// builds their persisted payload.
package organization

import (
	"github.com/sells-group/mission-sync/internal/model"
)

// Source names the signal an identity was derived from.
type Source string

const (
	SourceClientID       Source = "client_id"
	SourceOrganizationID Source = "organization_id"
	SourceRNA            Source = "rna"
	SourceSiret          Source = "siret"
	SourceSiren          Source = "siren"
	SourceName           Source = "name"
)

// Identity is the resolved external key of an organization plus the registry
// numbers recognised along the way.
type Identity struct {
	Key    string
	Source Source
	RNA    string
	Siren  string
	Siret  string
}

// identityRule derives an identity from one signal; ok is false when the
// signal is absent or invalid.
type identityRule func(f model.OrganizationFields, registry registryNumbers) (Identity, bool)

// identityRules are tried in order; the first match wins.
var identityRules = []identityRule{
	func(f model.OrganizationFields, _ registryNumbers) (Identity, bool) {
		return Identity{Key: f.ClientID, Source: SourceClientID}, f.ClientID != ""
	},
	func(f model.OrganizationFields, _ registryNumbers) (Identity, bool) {
		return Identity{Key: f.ID, Source: SourceOrganizationID}, f.ID != ""
	},
	func(_ model.OrganizationFields, r registryNumbers) (Identity, bool) {
		return Identity{Key: r.rna, Source: SourceRNA}, r.rna != ""
	},
	func(_ model.OrganizationFields, r registryNumbers) (Identity, bool) {
		return Identity{Key: r.siret, Source: SourceSiret}, r.siret != ""
	},
	func(_ model.OrganizationFields, r registryNumbers) (Identity, bool) {
		return Identity{Key: r.siren, Source: SourceSiren}, r.siren != ""
	},
	func(f model.OrganizationFields, _ registryNumbers) (Identity, bool) {
		slug := Slugify(f.Name)
		return Identity{Key: slug, Source: SourceName}, slug != ""
	},
}

type registryNumbers struct {
	rna   string
	siret string
	siren string
}

// parseRegistry recognises registry numbers independently of which one wins
// the identity, so the payload keeps all of them.
func parseRegistry(f model.OrganizationFields) registryNumbers {
	r := registryNumbers{rna: NormalizeRNA(f.RNA)}
	for _, candidate := range []string{f.Siret, f.Siren} {
		d := digits(candidate)
		switch {
		case r.siret == "" && ValidSiret(d):
			r.siret = d
			if r.siren == "" {
				r.siren = d[:9]
			}
		case r.siren == "" && ValidSiren(d):
			r.siren = d
		}
	}
	return r
}

// ResolveIdentity computes the deterministic identity of an organization.
// The second return value is false when the record carries no usable signal.
func ResolveIdentity(f model.OrganizationFields) (Identity, bool) {
	registry := parseRegistry(f)
	for _, rule := range identityRules {
		if id, ok := rule(f, registry); ok {
			id.RNA, id.Siren, id.Siret = registry.rna, registry.siren, registry.siret
			return id, true
		}
	}
	return Identity{}, false
}
