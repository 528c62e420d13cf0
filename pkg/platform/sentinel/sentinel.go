package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors with codes.
//
// These represent factual states about stored privilege records, not
// validation failures:
// - ErrNotFound: record (or required ACTIVE relationship) does not exist
// - ErrConflict: an ACTIVE relationship already covers the triple
// - ErrInvalidState: record in a terminal state for the requested transition
// - ErrUnavailable: storage temporarily unreachable or timed out
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
