package model

import "time"

// RawRecord is one untyped mission entry as decoded from a publisher feed.
// Values are string, map[string]any, []any or nil.
type RawRecord map[string]any

// OrganizationFields are the organization attributes carried by a feed record.
type OrganizationFields struct {
	ClientID      string   `json:"client_id,omitempty"`
	ID            string   `json:"id,omitempty"`
	Name          string   `json:"name,omitempty"`
	RNA           string   `json:"rna,omitempty"`
	Siren         string   `json:"siren,omitempty"`
	Siret         string   `json:"siret,omitempty"`
	LegalStatus   string   `json:"legal_status,omitempty"`
	Type          string   `json:"type,omitempty"`
	Description   string   `json:"description,omitempty"`
	URL           string   `json:"url,omitempty"`
	Logo          string   `json:"logo,omitempty"`
	Email         string   `json:"email,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	FullAddress   string   `json:"full_address,omitempty"`
	City          string   `json:"city,omitempty"`
	PostalCode    string   `json:"postal_code,omitempty"`
	Beneficiaries []string `json:"beneficiaries,omitempty"`
	Networks      []string `json:"networks,omitempty"`

	// Set by the verification gateway.
	VerificationStatus VerificationStatus `json:"verification_status,omitempty"`
	VerifiedName       string             `json:"verified_name,omitempty"`
}

// NormalizedMission is a typed candidate decoded from a RawRecord.
type NormalizedMission struct {
	ClientID        string
	Title           string
	Description     string
	DescriptionHTML string
	ApplicationURL  string

	Domain     string
	Activities []string
	Tags       []string
	Audience   []string
	SoftSkills []string

	Requirements []string
	RomeSkills   []string

	Schedule                  string
	Remote                    RemotePolicy
	OpenToMinors              *bool
	ReducedMobilityAccessible *bool
	CloseToTransport          *bool

	StartAt  *time.Time
	EndAt    *time.Time
	PostedAt *time.Time
	Duration *int
	Places   *int

	Priority     string
	Metadata     string
	Compensation Compensation
	Snu          *bool
	SnuPlaces    *int

	Addresses    []Address
	Organization OrganizationFields
}

// GeolocResult is one enriched address returned by the geolocation gateway.
type GeolocResult struct {
	ClientID       string
	AddressIndex   int
	Street         string
	City           string
	PostalCode     string
	DepartmentCode string
	DepartmentName string
	Region         string
	Location       *Location
	GeolocStatus   GeolocStatus
}
