// Package models holds the legal aggregates: versioned documents and the law
// registry that maps jurisdictions to consent requirements.
package models

import (
	"time"

	id "girok/pkg/domain"
)

// DocumentType doubles as the consent type: granting consent to a document
// grants the consent its type names.
type DocumentType string

const (
	DocTermsOfService      DocumentType = "TERMS_OF_SERVICE"
	DocPrivacyPolicy       DocumentType = "PRIVACY_POLICY"
	DocMarketingEmail      DocumentType = "MARKETING_EMAIL"
	DocMarketingSMS        DocumentType = "MARKETING_SMS"
	DocMarketingPush       DocumentType = "MARKETING_PUSH"
	DocMarketingPushNight  DocumentType = "MARKETING_PUSH_NIGHT"
	DocDataProcessing      DocumentType = "DATA_PROCESSING"
	DocCrossBorderTransfer DocumentType = "CROSS_BORDER_TRANSFER"
)

// ParseDocumentType validates a wire value.
func ParseDocumentType(s string) (DocumentType, bool) {
	switch DocumentType(s) {
	case DocTermsOfService, DocPrivacyPolicy, DocMarketingEmail, DocMarketingSMS,
		DocMarketingPush, DocMarketingPushNight, DocDataProcessing, DocCrossBorderTransfer:
		return DocumentType(s), true
	}
	return "", false
}

// Document is one version of a legal text. (Type, Version, Locale, Service,
// Country) is unique; at most one active latest exists per (type, locale,
// service, country) at any instant.
type Document struct {
	ID            id.DocumentID
	Type          DocumentType
	Version       string
	Locale        string
	ServiceID     *id.ServiceID
	Country       *string
	Title         string
	Body          string
	Summary       string
	EffectiveDate time.Time
	ExpiresAt     *time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ResolvableAt reports whether this document can be the latest at now.
func (d *Document) ResolvableAt(now time.Time) bool {
	if !d.IsActive || d.EffectiveDate.After(now) {
		return false
	}
	return d.ExpiresAt == nil || d.ExpiresAt.After(now)
}

// SpecialRules carries the per-law behavioral knobs beyond plain consent
// lists.
type SpecialRules struct {
	NightPushStartHour  int  `json:"night_push_start_hour"`
	NightPushEndHour    int  `json:"night_push_end_hour"`
	DataRetentionDays   int  `json:"data_retention_days"`
	MinAge              int  `json:"min_age"`
	ParentalConsentAge  int  `json:"parental_consent_age"`
	CrossBorderExplicit bool `json:"cross_border_explicit"`
}

// Requirements lists which consent types a law demands and which it merely
// regulates.
type Requirements struct {
	Required []DocumentType `json:"required"`
	Optional []DocumentType `json:"optional"`
}

// Law is one jurisdiction entry in the registry.
type Law struct {
	ID            id.LawID
	Code          string
	Name          string
	Jurisdiction  string
	Country       *string
	EffectiveFrom time.Time
	Requirements  Requirements
	SpecialRules  SpecialRules
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ActiveAt reports whether the law is in force.
func (l *Law) ActiveAt(now time.Time) bool {
	return !l.EffectiveFrom.After(now)
}

// ConsentRequirements is the per-country union over active laws, deduplicated
// by consent type with required winning over optional.
type ConsentRequirements struct {
	Country  string         `json:"country"`
	Laws     []string       `json:"laws"`
	Required []DocumentType `json:"required"`
	Optional []DocumentType `json:"optional"`
}
