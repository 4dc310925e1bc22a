package model

import "time"

// VerificationStatus is the outcome of a legal-registry cross-check.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = ""
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationNotFound VerificationStatus = "NOT_FOUND"
	VerificationError    VerificationStatus = "ERROR"
)

// Organization is a persisted publisher organization, unique per
// (PublisherID, ClientID). ClientID is the resolved identity key.
type Organization struct {
	ID          string `json:"id"`
	PublisherID string `json:"publisher_id"`
	ClientID    string `json:"client_id"`

	Name          string   `json:"name"`
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

	VerificationStatus VerificationStatus `json:"verification_status,omitempty"`
	VerifiedName       string             `json:"verified_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
