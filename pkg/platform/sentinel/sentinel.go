// Package sentinel defines infrastructure-level sentinel errors. Stores return
// these (optionally wrapped) so services can translate facts about storage
// into domain errors without string matching.
package sentinel

import "errors"

// Factual states about resources, not validation failures:
//   - ErrNotFound: row/key does not exist
//   - ErrConflict: uniqueness violated on insert
//   - ErrExpired: challenge/session/consent past its expiry
//   - ErrInvalidState: aggregate in a state that forbids the transition
//   - ErrUnavailable: backing store unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
