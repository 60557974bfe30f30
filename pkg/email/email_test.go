package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveNameFromEmail(t *testing.T) {
	cases := []struct {
		address string
		first   string
		last    string
	}{
		{"jane.doe@example.com", "Jane", "Doe"},
		{"jane.van.doe@example.com", "Jane", "Doe"},
		{"jane_doe+test@example.com", "Jane", "Test"},
		{"jane@example.com", "Jane", "User"},
		{"...@example.com", "User", "User"},
		{"no-at-sign", "No", "Sign"},
	}
	for _, tc := range cases {
		first, last := DeriveNameFromEmail(tc.address)
		assert.Equal(t, tc.first, first, tc.address)
		assert.Equal(t, tc.last, last, tc.address)
	}
}
