// Package relationship tracks attorney-client-case associations. Every
// privileged read or write in the engine is gated on an ACTIVE row here.
package relationship

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lexvault/internal/privilege/audit"
	"lexvault/internal/privilege/models"
	dErrors "lexvault/pkg/domain-errors"
	"lexvault/pkg/platform/sentinel"
)

// CaseRecord is the storage shape of a case. StrategyNotes is persisted but
// never mapped into the CaseSummary handed to callers.
type CaseRecord struct {
	models.CaseSummary
	StrategyNotes string
}

// Store persists relationships and case metadata.
type Store interface {
	// Create inserts a new ACTIVE relationship. Returns sentinel.ErrConflict
	// when an ACTIVE row already covers the same (attorney, client, case).
	Create(ctx context.Context, rel *models.PrivilegeRelationship) error
	// ActiveExists reports whether any ACTIVE row covers the pair.
	ActiveExists(ctx context.Context, attorneyID, clientID string) (bool, error)
	// Close transitions ACTIVE -> CLOSED and returns the closed row.
	// sentinel.ErrNotFound when the id is unknown, sentinel.ErrInvalidState
	// when the row is already CLOSED.
	Close(ctx context.Context, id uuid.UUID, closedAt time.Time) (*models.PrivilegeRelationship, error)
	// Cases returns privilege-safe summaries for the pair's matters.
	Cases(ctx context.Context, attorneyID, clientID string) ([]models.CaseSummary, error)
	// CountActiveClients counts distinct clients with ACTIVE relationships.
	CountActiveClients(ctx context.Context, attorneyID string) (int, error)
	// UpsertCase records case metadata at intake.
	UpsertCase(ctx context.Context, record CaseRecord) error
}

// Registry is the engine's authority on who may exchange privileged material
// with whom.
type Registry struct {
	store   Store
	audit   *audit.Log
	logger  *slog.Logger
	timeout time.Duration
}

type Option func(r *Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithStorageTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

func New(store Store, auditLog *audit.Log, opts ...Option) *Registry {
	r := &Registry{store: store, audit: auditLog, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Verify reports whether an ACTIVE relationship exists for the pair (any
// case). This is the fast-path gate; writes are additionally guarded by the
// storage layer's atomic check (see communication.Store).
func (r *Registry) Verify(ctx context.Context, attorneyID, clientID string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	ok, err := r.store.ActiveExists(ctx, attorneyID, clientID)
	if err != nil {
		return false, storageErr(err, "verify relationship")
	}
	return ok, nil
}

// Create records a new ACTIVE relationship at client intake. Closed rows for
// the same triple are untouched: re-engagement is a new row, not a reopen.
func (r *Registry) Create(ctx context.Context, attorneyID, clientID, caseID string, scope models.Scope) (*models.PrivilegeRelationship, error) {
	rel, err := models.NewPrivilegeRelationship(attorneyID, clientID, caseID, scope, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.store.Create(ctx, rel); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "an active relationship already exists for this attorney, client and case")
		}
		return nil, storageErr(err, "create relationship")
	}

	r.audit.Record(ctx, audit.Entry{
		ActorID: attorneyID,
		Action:  audit.ActionRelationshipCreated,
		Detail:  fmt.Sprintf("established privilege relationship with client %s for case %s (scope %s)", clientID, caseID, scope),
	})
	return rel, nil
}

// Close ends a relationship at case end. CLOSED is terminal.
func (r *Registry) Close(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	rel, err := r.store.Close(ctx, id, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "relationship not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return dErrors.New(dErrors.CodeConflict, "relationship already closed")
		}
		return storageErr(err, "close relationship")
	}

	r.audit.Record(ctx, audit.Entry{
		ActorID: rel.AttorneyID,
		Action:  audit.ActionRelationshipClosed,
		Detail:  fmt.Sprintf("closed privilege relationship with client %s for case %s", rel.ClientID, rel.CaseID),
	})
	return nil
}

// GetContext returns case summaries for a verified pair. Strategy notes are
// excluded even though the caller holds a verified relationship: context
// responses feed downstream prompt construction and must not leak work
// product.
func (r *Registry) GetContext(ctx context.Context, attorneyID, clientID string) ([]models.CaseSummary, error) {
	ok, err := r.Verify(ctx, attorneyID, clientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.audit.Record(ctx, audit.Entry{
			ActorID: attorneyID,
			Action:  audit.ActionContextAccessed,
			Detail:  fmt.Sprintf("context request for client %s denied: no active relationship", clientID),
			Outcome: audit.OutcomeDenied,
		})
		return nil, dErrors.New(dErrors.CodeRelationshipNotFound, "no active attorney-client relationship")
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()
	cases, err := r.store.Cases(ctx, attorneyID, clientID)
	if err != nil {
		return nil, storageErr(err, "load client context")
	}

	r.audit.Record(ctx, audit.Entry{
		ActorID: attorneyID,
		Action:  audit.ActionContextAccessed,
		Detail:  fmt.Sprintf("retrieved context for client %s (%d cases)", clientID, len(cases)),
	})
	return cases, nil
}

// CountActiveClients supports compliance reporting.
func (r *Registry) CountActiveClients(ctx context.Context, attorneyID string) (int, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	n, err := r.store.CountActiveClients(ctx, attorneyID)
	if err != nil {
		return 0, storageErr(err, "count active relationships")
	}
	return n, nil
}

// RegisterCase records case metadata at intake so context lookups can serve
// privilege-safe summaries.
func (r *Registry) RegisterCase(ctx context.Context, record CaseRecord) error {
	if record.CaseID == "" {
		return dErrors.New(dErrors.CodeValidation, "case_id is required")
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.store.UpsertCase(ctx, record); err != nil {
		return storageErr(err, "register case")
	}
	return nil
}

func (r *Registry) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func storageErr(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, op+" timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, op+" failed")
}
