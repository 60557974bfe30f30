package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "girok/pkg/domain-errors"
)

// TestParseID_Invariants validates the parsing invariant: IDs must be valid,
// non-empty, non-nil UUIDs. These are trust boundary checks, so rejection of
// malformed input is a security property.
func TestParseID_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE accounts;--", true},
		{"path traversal", "../../../etc/passwd", true},
		{"null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"oversized input", strings.Repeat("a", 1000), true},
		{"empty string", "", true},
		{"nil UUID", uuid.Nil.String(), true},
		{"whitespace only", "   ", true},
		{"uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccountID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures every ID type shares the same
// parsing rules; divergent validation across types would open holes.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	valid := uuid.New().String()
	invalid := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errAccount := ParseAccountID(valid)
		_, errSession := ParseSessionID(valid)
		_, errSanction := ParseSanctionID(valid)
		_, errDocument := ParseDocumentID(valid)
		_, errConsent := ParseConsentID(valid)
		_, errDSR := ParseDSRID(valid)
		_, errService := ParseServiceID(valid)

		require.NoError(t, errAccount)
		require.NoError(t, errSession)
		require.NoError(t, errSanction)
		require.NoError(t, errDocument)
		require.NoError(t, errConsent)
		require.NoError(t, errDSR)
		require.NoError(t, errService)
	})

	for _, input := range invalid {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errAccount := ParseAccountID(input)
			_, errSession := ParseSessionID(input)
			_, errSanction := ParseSanctionID(input)
			_, errDSR := ParseDSRID(input)

			require.Error(t, errAccount)
			require.Error(t, errSession)
			require.Error(t, errSanction)
			require.Error(t, errDSR)
		})
	}
}

func TestParseConsentType(t *testing.T) {
	t.Run("accepts known types", func(t *testing.T) {
		got, err := ParseConsentType("TERMS_OF_SERVICE")
		require.NoError(t, err)
		assert.Equal(t, ConsentTermsOfService, got)
	})

	t.Run("rejects unknown and empty", func(t *testing.T) {
		_, err := ParseConsentType("TRACKING_PIXELS")
		require.Error(t, err)
		_, err = ParseConsentType("")
		require.Error(t, err)
	})
}
