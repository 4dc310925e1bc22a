package normalize

// chain lists the accepted names for one field, the correct spelling first
// and known publisher typos after it.
type chain []string

// lookup returns the first non-empty value along the chain.
func (c chain) lookup(m map[string]any) any {
	for _, name := range c {
		if v, ok := m[name]; ok && !isEmpty(v) {
			return v
		}
	}
	return nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return len(compact([]string{t})) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

var (
	fieldClientID        = chain{"clientId", "clientID", "client_id"}
	fieldTitle           = chain{"title"}
	fieldDescription     = chain{"description"}
	fieldDescriptionHTML = chain{"descriptionHtml", "descriptionHTML"}
	fieldApplicationURL  = chain{"applicationUrl", "applicationURL", "application_url"}
	fieldDomain          = chain{"domain"}
	fieldActivities      = chain{"activities", "activity"}
	fieldTags            = chain{"tags"}
	fieldAudience        = chain{"audience", "publicBeneficiaries", "publicsBeneficiaires"}
	fieldSoftSkills      = chain{"softSkills", "soft_skills", "softskills"}
	fieldRequirements    = chain{"requirements"}
	fieldRomeSkills      = chain{"romeSkills", "rome_skills"}
	fieldSchedule        = chain{"schedule"}
	fieldRemote          = chain{"remote"}
	fieldOpenToMinors    = chain{"openToMinors", "openToMinor"}
	fieldReducedMobility = chain{"reducedMobilityAccessible", "reducedMobilityAccessibility", "reduceMobilityAccessible"}
	fieldCloseTransport  = chain{"closeToTransport"}
	fieldStartAt         = chain{"startAt", "startDate"}
	fieldEndAt           = chain{"endAt", "endDate"}
	fieldPostedAt        = chain{"postedAt", "publicationDate"}
	fieldPlaces          = chain{"places"}
	fieldPriority        = chain{"priority"}
	fieldMetadata        = chain{"metadata"}
	fieldCompAmount      = chain{"compensationAmount"}
	fieldCompUnit        = chain{"compensationUnit"}
	fieldCompType        = chain{"compensationType"}
	fieldSnu             = chain{"snu"}
	fieldSnuPlaces       = chain{"snuPlaces"}
	fieldAddresses       = chain{"addresses"}
)

var (
	orgClientID      = chain{"organizationClientId", "organizationClientID"}
	orgID            = chain{"organizationId", "organizationID"}
	orgName          = chain{"organizationName"}
	orgRNA           = chain{"organizationRNA", "organizationRna"}
	orgSiren         = chain{"organizationSiren", "organizationSIREN"}
	orgSiret         = chain{"organizationSiret", "organizationSIRET"}
	orgLegalStatus   = chain{"organizationStatusJuridique", "organizationLegalStatus"}
	orgType          = chain{"organizationType"}
	orgDescription   = chain{"organizationDescription"}
	orgURL           = chain{"organizationUrl", "organizationURL"}
	orgLogo          = chain{"organizationLogo"}
	orgEmail         = chain{"organizationEmail"}
	orgPhone         = chain{"organizationPhone"}
	orgFullAddress   = chain{"organizationFullAddress"}
	orgCity          = chain{"organizationCity"}
	orgPostalCode    = chain{"organizationPostCode", "organizationPostalCode"}
	orgBeneficiaries = chain{"organizationBeneficiaries", "organizationBeneficiaires", "organizationBeneficiares", "organisationBeneficiaries"}
	orgNetworks      = chain{"organizationReseaux", "organizationNetwork"}
)

var (
	addrStreet         = chain{"street", "address"}
	addrCity           = chain{"city"}
	addrPostalCode     = chain{"postalCode", "postal_code", "zipCode", "postcode"}
	addrDepartmentCode = chain{"departmentCode"}
	addrDepartmentName = chain{"departmentName"}
	addrRegion         = chain{"region"}
	addrCountry        = chain{"country"}
	addrLat            = chain{"lat", "latitude"}
	addrLon            = chain{"lon", "lng", "longitude"}
)

// flatAddressKeys are top-level record keys that describe a single address
// when the feed has no addresses block.
var flatAddressKeys = []chain{addrStreet, addrCity, addrPostalCode}

