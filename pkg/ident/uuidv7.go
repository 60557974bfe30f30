// Package ident generates and manipulates the identifier and second-factor
// material used across the engine: time-ordered UUIDv7 primary keys, short
// Base62 external IDs, RFC 6238 TOTP and single-use backup codes.
package ident

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewUUIDv7 returns a UUIDv7 whose top 48 bits carry the current wall-clock
// milliseconds, so generated IDs sort lexicographically by creation time.
func NewUUIDv7() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; at that point the
		// process cannot mint credentials or sessions either.
		panic(fmt.Sprintf("uuidv7: %v", err))
	}
	return id
}

// UUIDv7Timestamp extracts the embedded millisecond timestamp.
func UUIDv7Timestamp(id uuid.UUID) time.Time {
	ms := int64(id[0])<<40 | int64(id[1])<<32 | int64(id[2])<<24 |
		int64(id[3])<<16 | int64(id[4])<<8 | int64(id[5])
	return time.UnixMilli(ms).UTC()
}

// CompareUUIDv7 orders two IDs: -1 when a < b, 0 when equal, 1 when a > b.
// Byte order equals time order for v7 IDs.
func CompareUUIDv7(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
