package ident

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Base62 alphabet ordered so lexical comparison equals numeric comparison.
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// ExternalIDEpoch is the custom epoch for external IDs: 2025-01-01T00:00:00Z.
var ExternalIDEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	extIDTimeLen   = 8
	extIDRandomLen = 2
	// ExternalIDLength is the fixed length of a generated external ID.
	ExternalIDLength = extIDTimeLen + extIDRandomLen
)

// NewExternalID returns a 10-character Base62 identifier: the first 8
// characters encode milliseconds since ExternalIDEpoch (zero-padded, so IDs
// sort by creation time), the last 2 are crypto-random. Collisions within the
// same millisecond are possible (1 in 62^2); callers retry the insert up to 3
// times on a uniqueness conflict.
func NewExternalID(now time.Time) (string, error) {
	ms := now.UTC().Sub(ExternalIDEpoch).Milliseconds()
	if ms < 0 {
		return "", fmt.Errorf("external id: time %v precedes epoch", now)
	}

	buf := make([]byte, ExternalIDLength)
	for i := extIDTimeLen - 1; i >= 0; i-- {
		buf[i] = base62Alphabet[ms%62]
		ms /= 62
	}
	if ms > 0 {
		return "", fmt.Errorf("external id: timestamp overflows %d base62 digits", extIDTimeLen)
	}

	random := make([]byte, extIDRandomLen)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("external id entropy: %w", err)
	}
	for i, b := range random {
		buf[extIDTimeLen+i] = base62Alphabet[int(b)%62]
	}
	return string(buf), nil
}

// ExternalIDTime decodes the creation time embedded in an external ID.
func ExternalIDTime(id string) (time.Time, error) {
	if len(id) != ExternalIDLength {
		return time.Time{}, fmt.Errorf("external id: want %d chars, got %d", ExternalIDLength, len(id))
	}
	var ms int64
	for i := 0; i < extIDTimeLen; i++ {
		idx := indexOfBase62(id[i])
		if idx < 0 {
			return time.Time{}, fmt.Errorf("external id: invalid character %q", id[i])
		}
		ms = ms*62 + int64(idx)
	}
	return ExternalIDEpoch.Add(time.Duration(ms) * time.Millisecond), nil
}

func indexOfBase62(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 36
	default:
		return -1
	}
}
