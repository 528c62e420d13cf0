package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "lexvault/pkg/domain-errors"
)

// Scope is the access tier of a relationship or communication.
type Scope string

const (
	ScopeFull    Scope = "FULL"
	ScopeLimited Scope = "LIMITED"
	ScopePublic  Scope = "PUBLIC"
	ScopeSealed  Scope = "SEALED"
)

// ValidScope reports whether s is a known access tier.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeFull, ScopeLimited, ScopePublic, ScopeSealed:
		return true
	}
	return false
}

// RelationshipStatus tracks the ACTIVE -> CLOSED lifecycle. CLOSED is
// terminal; a new engagement means a new row, never a reopen.
type RelationshipStatus string

const (
	RelationshipActive RelationshipStatus = "ACTIVE"
	RelationshipClosed RelationshipStatus = "CLOSED"
)

// CommunicationStatus tracks the ACTIVE -> DESTROYED lifecycle. DESTROYED is
// terminal: the row is retained as a tombstone for audit continuity.
type CommunicationStatus string

const (
	CommunicationActive    CommunicationStatus = "ACTIVE"
	CommunicationDestroyed CommunicationStatus = "DESTROYED"
)

// TombstoneMarker replaces ciphertext when a communication is destroyed. The
// row itself is never physically removed so the audit trail can prove the
// record existed. Whether true physical erasure is legally required is an open
// retention-policy question; tombstoning is the deliberate default.
var TombstoneMarker = []byte("DATA_DESTROYED")

// PrivilegeRelationship links an attorney, a client and a matter. It gates
// every privileged read and write. Never deleted; closed at case end.
type PrivilegeRelationship struct {
	ID            uuid.UUID
	AttorneyID    string
	ClientID      string
	CaseID        string
	Scope         Scope
	Status        RelationshipStatus
	EstablishedAt time.Time
	ClosedAt      *time.Time
}

// NewPrivilegeRelationship validates invariants and returns an ACTIVE
// relationship ready for insertion.
func NewPrivilegeRelationship(attorneyID, clientID, caseID string, scope Scope, now time.Time) (*PrivilegeRelationship, error) {
	if attorneyID == "" || clientID == "" || caseID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "attorney_id, client_id and case_id are required")
	}
	if !ValidScope(scope) {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid privilege scope: "+string(scope))
	}
	return &PrivilegeRelationship{
		ID:            uuid.New(),
		AttorneyID:    attorneyID,
		ClientID:      clientID,
		CaseID:        caseID,
		Scope:         scope,
		Status:        RelationshipActive,
		EstablishedAt: now,
	}, nil
}

// Close transitions the relationship to CLOSED. Closing a closed relationship
// is an invalid state transition.
func (r *PrivilegeRelationship) Close(now time.Time) error {
	if r.Status != RelationshipActive {
		return dErrors.New(dErrors.CodeConflict, "relationship already closed")
	}
	r.Status = RelationshipClosed
	r.ClosedAt = &now
	return nil
}

// PrivilegedCommunication is an encrypted attorney-client communication.
// Owned exclusively by the communication store; ciphertext is opaque to every
// other component.
type PrivilegedCommunication struct {
	ID         uuid.UUID
	AttorneyID string
	ClientID   string
	Ciphertext []byte
	Kind       string
	Scope      Scope
	Status     CommunicationStatus
	CreatedAt  time.Time
}

// Destroyed reports whether the row is a tombstone.
func (c *PrivilegedCommunication) Destroyed() bool {
	return c.Status == CommunicationDestroyed
}

// CaseSummary is the privilege-safe view of a case returned to verified
// attorneys. Strategy notes exist on the storage row but are deliberately
// absent here as defense in depth.
type CaseSummary struct {
	CaseID string `json:"case_id"`
	Name   string `json:"case_name"`
	Type   string `json:"case_type"`
	Status string `json:"case_status"`
	Facts  string `json:"case_facts"`
	Issues string `json:"legal_issues"`
}

// StaffMember is an entity-directory row authorizing supervised access to an
// attorney's privileged materials.
type StaffMember struct {
	UserID     string
	EntityType string
	AttorneyID string
}
