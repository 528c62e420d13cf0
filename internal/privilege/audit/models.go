package audit

import "time"

// Action enumerates the privileged actions the trail records.
type Action string

const (
	ActionRelationshipCreated   Action = "RELATIONSHIP_CREATED"
	ActionRelationshipClosed    Action = "RELATIONSHIP_CLOSED"
	ActionCommunicationStored   Action = "COMMUNICATION_STORED"
	ActionCommunicationAccessed Action = "COMMUNICATION_ACCESSED"
	ActionContextAccessed       Action = "CONTEXT_ACCESSED"
	ActionAccessCheck           Action = "ACCESS_CHECK"
	ActionDataDestroyed         Action = "DATA_DESTROYED"
	ActionKeyInitialized        Action = "KEY_INITIALIZED"
)

// Outcome tags whether the recorded action succeeded, was denied, or errored.
type Outcome string

const (
	OutcomeOK     Outcome = "OK"
	OutcomeDenied Outcome = "DENIED"
	OutcomeError  Outcome = "ERROR"
)

// Entry is one immutable record in the trail. The storage layer assigns a
// monotonically increasing ID at append; entries are never updated or deleted
// afterwards. Signature is an HMAC-SHA256 over the entry fields so tampering
// with a persisted row is detectable.
type Entry struct {
	ID        int64
	ActorID   string
	Action    Action
	Detail    string
	Outcome   Outcome
	Timestamp time.Time
	Signature []byte
}

// Query selects entries newest-first. A zero AttorneyID matches all actors;
// zero times are open-ended; Limit defaults to DefaultQueryLimit.
type Query struct {
	AttorneyID string
	Start      time.Time
	End        time.Time
	Limit      int
}

// DefaultQueryLimit bounds audit reads the same way the retrieval path bounds
// communication reads.
const DefaultQueryLimit = 100
