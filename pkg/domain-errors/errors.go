// Package domainerrors defines the coded error type the privilege engine
// returns for expected failure conditions. Stores return sentinel errors
// (pkg/platform/sentinel); services translate them into coded errors here so
// transport can map codes to HTTP statuses without inspecting error text.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure kind. Codes are part of the engine's contract:
// callers branch on them, so additions are fine but renames are breaking.
type Code string

const (
	// CodeRelationshipNotFound aborts privileged reads/writes when no ACTIVE
	// attorney-client relationship covers the pair.
	CodeRelationshipNotFound Code = "relationship_not_found"
	// CodeEncryption marks a key or transform failure while sealing a payload.
	CodeEncryption Code = "encryption_failed"
	// CodeDecryption marks an authentication failure while opening ciphertext.
	CodeDecryption Code = "decryption_failed"
	// CodeKeyInit marks a fatal failure to load or persist key material.
	CodeKeyInit Code = "key_initialization_failed"
	// CodeStorageUnavailable marks a storage timeout or connection failure.
	CodeStorageUnavailable Code = "storage_unavailable"

	CodeValidation Code = "validation"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeForbidden  Code = "forbidden"
	CodeInternal   Code = "internal"
)

// Error carries a Code alongside a human-readable message and an optional
// wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the transport layer writes.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeRelationshipNotFound, CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
