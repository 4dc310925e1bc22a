package model

import (
	"encoding/json"
	"time"
)

// ModerationStatus is the accept/reject outcome of moderation.
type ModerationStatus string

const (
	StatusAccepted ModerationStatus = "ACCEPTED"
	StatusRefused  ModerationStatus = "REFUSED"
)

// RemotePolicy describes whether a mission can be done remotely.
type RemotePolicy string

const (
	RemoteNo       RemotePolicy = "no"
	RemotePossible RemotePolicy = "possible"
	RemoteFull     RemotePolicy = "full"
)

// GeolocStatus records how an address got (or failed to get) its coordinates.
type GeolocStatus string

const (
	GeolocPending     GeolocStatus = "SHOULD_ENRICH"
	GeolocByPublisher GeolocStatus = "ENRICHED_BY_PUBLISHER"
	GeolocByAPI       GeolocStatus = "ENRICHED_BY_API"
	GeolocNotFound    GeolocStatus = "NOT_FOUND"
	GeolocFailed      GeolocStatus = "FAILED"
	GeolocNoData      GeolocStatus = "NO_DATA"
)

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Address is one place where a mission takes place.
type Address struct {
	Street         string          `json:"street,omitempty"`
	City           string          `json:"city,omitempty"`
	PostalCode     string          `json:"postal_code,omitempty"`
	DepartmentCode string          `json:"department_code,omitempty"`
	DepartmentName string          `json:"department_name,omitempty"`
	Region         string          `json:"region,omitempty"`
	Country        string          `json:"country,omitempty"`
	Location       *Location       `json:"location,omitempty"`
	GeoPoint       json.RawMessage `json:"geo_point,omitempty"`
	GeolocStatus   GeolocStatus    `json:"geoloc_status,omitempty"`
}

// SameAs reports whether two addresses designate the same postal place,
// ignoring enrichment output.
func (a Address) SameAs(b Address) bool {
	return a.Street == b.Street && a.City == b.City && a.PostalCode == b.PostalCode && a.Country == b.Country
}

// HasLocation reports whether the address carries coordinates.
func (a Address) HasLocation() bool {
	return a.Location != nil
}

// Compensation describes what a volunteer receives, if anything.
type Compensation struct {
	Amount *float64 `json:"amount,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	Type   string   `json:"type,omitempty"`
}

// Mission is a persisted volunteering opportunity, unique per (PublisherID, ClientID).
type Mission struct {
	ID          string `json:"id"`
	PublisherID string `json:"publisher_id"`
	ClientID    string `json:"client_id"`

	Title           string `json:"title"`
	Description     string `json:"description"`
	DescriptionHTML string `json:"description_html,omitempty"`
	ApplicationURL  string `json:"application_url"`

	Domain         string   `json:"domain,omitempty"`
	DomainOriginal string   `json:"domain_original,omitempty"`
	DomainID       string   `json:"domain_id,omitempty"`
	Activities     []string `json:"activities,omitempty"`
	ActivityIDs    []string `json:"activity_ids,omitempty"`

	Tags         []string `json:"tags,omitempty"`
	Audience     []string `json:"audience,omitempty"`
	SoftSkills   []string `json:"soft_skills,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
	RomeSkills   []string `json:"rome_skills,omitempty"`

	Schedule                  string       `json:"schedule,omitempty"`
	Remote                    RemotePolicy `json:"remote,omitempty"`
	OpenToMinors              *bool        `json:"open_to_minors,omitempty"`
	ReducedMobilityAccessible *bool        `json:"reduced_mobility_accessible,omitempty"`
	CloseToTransport          *bool        `json:"close_to_transport,omitempty"`

	StartAt  *time.Time `json:"start_at,omitempty"`
	EndAt    *time.Time `json:"end_at,omitempty"`
	PostedAt *time.Time `json:"posted_at,omitempty"`
	Duration *int       `json:"duration,omitempty"`
	Places   *int       `json:"places,omitempty"`

	Priority     string       `json:"priority,omitempty"`
	Metadata     string       `json:"metadata,omitempty"`
	Compensation Compensation `json:"compensation"`
	Snu          *bool        `json:"snu,omitempty"`
	SnuPlaces    *int         `json:"snu_places,omitempty"`

	StatusCode    ModerationStatus `json:"status_code"`
	StatusComment string           `json:"status_comment,omitempty"`

	OrganizationID       *string       `json:"organization_id,omitempty"`
	OrganizationClientID string        `json:"organization_client_id,omitempty"`
	OrganizationName     string        `json:"organization_name,omitempty"`
	OrganizationLogo     string        `json:"organization_logo,omitempty"`
	Organization         *Organization `json:"-"`

	Addresses []Address `json:"addresses,omitempty"`

	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Source is the normalized record this mission was assembled from. It only
	// lives for the duration of one run.
	Source *NormalizedMission `json:"-"`
}
