package domain

import dErrors "girok/pkg/domain-errors"

// ConsentType identifies what a user is consenting to. The taxonomy is shared
// between legal documents (which carry the text) and the law registry (which
// decides whether a type is required or optional per jurisdiction).
//
// Construct via ParseConsentType at trust boundaries; direct casting bypasses
// the allowlist.
type ConsentType string

const (
	ConsentTermsOfService     ConsentType = "TERMS_OF_SERVICE"
	ConsentPrivacyPolicy      ConsentType = "PRIVACY_POLICY"
	ConsentMarketingEmail     ConsentType = "MARKETING_EMAIL"
	ConsentMarketingSMS       ConsentType = "MARKETING_SMS"
	ConsentMarketingPush      ConsentType = "MARKETING_PUSH"
	ConsentMarketingPushNight ConsentType = "MARKETING_PUSH_NIGHT"
	ConsentThirdPartySharing  ConsentType = "THIRD_PARTY_SHARING"
	ConsentCrossBorder        ConsentType = "CROSS_BORDER_TRANSFER"
	ConsentDataAnalytics      ConsentType = "DATA_ANALYTICS"
)

var validConsentTypes = map[ConsentType]bool{
	ConsentTermsOfService:     true,
	ConsentPrivacyPolicy:      true,
	ConsentMarketingEmail:     true,
	ConsentMarketingSMS:       true,
	ConsentMarketingPush:      true,
	ConsentMarketingPushNight: true,
	ConsentThirdPartySharing:  true,
	ConsentCrossBorder:        true,
	ConsentDataAnalytics:      true,
}

// ParseConsentType constructs a ConsentType from external input.
func ParseConsentType(s string) (ConsentType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "consent type cannot be empty")
	}
	t := ConsentType(s)
	if !validConsentTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown consent type")
	}
	return t, nil
}

func (t ConsentType) IsValid() bool { return validConsentTypes[t] }

func (t ConsentType) String() string { return string(t) }
