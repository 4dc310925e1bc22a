package organization

import (
	"go.uber.org/zap"

	"github.com/sells-group/mission-sync/internal/model"
)

// Resolve returns the organization payload of a normalized mission, or nil
// when no identity can be derived. It never panics.
func Resolve(n *model.NormalizedMission, publisher model.Publisher) (org *model.Organization) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("organization: resolve failed",
				zap.String("publisher", publisher.ID),
				zap.String("client_id", n.ClientID),
				zap.String("organization", n.Organization.Name),
				zap.Any("panic", p),
			)
			org = nil
		}
	}()

	id, ok := ResolveIdentity(n.Organization)
	if !ok {
		return nil
	}
	return Build(n.Organization, id, publisher)
}

// Build assembles the persisted organization from feed fields and a resolved
// identity. The publisher's default logo fills in a missing logo.
func Build(f model.OrganizationFields, id Identity, publisher model.Publisher) *model.Organization {
	logo := f.Logo
	if logo == "" {
		logo = publisher.DefaultLogo
	}
	name := f.Name
	if name == "" {
		name = f.VerifiedName
	}
	return &model.Organization{
		PublisherID:        publisher.ID,
		ClientID:           id.Key,
		Name:               name,
		RNA:                id.RNA,
		Siren:              id.Siren,
		Siret:              id.Siret,
		LegalStatus:        f.LegalStatus,
		Type:               f.Type,
		Description:        f.Description,
		URL:                f.URL,
		Logo:               logo,
		Email:              f.Email,
		Phone:              f.Phone,
		FullAddress:        f.FullAddress,
		City:               f.City,
		PostalCode:         f.PostalCode,
		Beneficiaries:      f.Beneficiaries,
		Networks:           f.Networks,
		VerificationStatus: f.VerificationStatus,
		VerifiedName:       f.VerifiedName,
	}
}
