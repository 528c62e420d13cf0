// Package communication owns privileged communication payloads. Plaintext
// exists only transiently inside this service; everything that crosses the
// store boundary is AES-256-GCM ciphertext.
package communication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lexvault/internal/platform/metrics"
	"lexvault/internal/privilege/audit"
	"lexvault/internal/privilege/cipher"
	"lexvault/internal/privilege/models"
	dErrors "lexvault/pkg/domain-errors"
	"lexvault/pkg/platform/sentinel"
)

// RetrieveLimit caps batch retrieval. Newest rows win when the pair has more.
const RetrieveLimit = 50

// decryptParallelism bounds the errgroup opening a retrieved batch.
const decryptParallelism = 8

// Store persists ciphertext rows.
type Store interface {
	// InsertIfActiveRelationship inserts the row only while an ACTIVE
	// relationship covers the pair, atomically with that check. Returns
	// sentinel.ErrNotFound when no such relationship exists; nothing is
	// written in that case.
	InsertIfActiveRelationship(ctx context.Context, comm *models.PrivilegedCommunication) error
	// Get fetches a single row by id.
	Get(ctx context.Context, id uuid.UUID) (*models.PrivilegedCommunication, error)
	// ListByPair returns up to limit rows for the pair, newest first.
	ListByPair(ctx context.Context, attorneyID, clientID string, limit int) ([]models.PrivilegedCommunication, error)
	// DestroyActive tombstones every ACTIVE row for the pair in one statement
	// and reports how many rows changed.
	DestroyActive(ctx context.Context, attorneyID, clientID string, tombstone []byte) (int64, error)
	// CountByAttorney counts rows for compliance reporting, tombstones included.
	CountByAttorney(ctx context.Context, attorneyID string) (int, error)
}

// Verifier is the relationship gate. Satisfied by relationship.Registry.
type Verifier interface {
	Verify(ctx context.Context, attorneyID, clientID string) (bool, error)
}

// Record is one retrieval result. Exactly one of Payload and Err is set for
// ACTIVE rows; destroyed rows carry neither, only their status.
type Record struct {
	ID        uuid.UUID
	Kind      string
	Scope     models.Scope
	Status    models.CommunicationStatus
	CreatedAt time.Time
	Payload   map[string]any
	Err       error
}

// Service mediates every store, retrieve and destroy of privileged material.
type Service struct {
	store    Store
	verifier Verifier
	cipher   *cipher.Cipher
	audit    *audit.Log
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithStorageTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func New(store Store, verifier Verifier, c *cipher.Cipher, auditLog *audit.Log, opts ...Option) *Service {
	s := &Service{
		store:    store,
		verifier: verifier,
		cipher:   c,
		audit:    auditLog,
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreCommunication encrypts and persists a payload for a verified pair.
// The relationship is checked twice: a cheap verify up front so invalid
// requests never reach the cipher, and again inside the store's atomic
// insert so a concurrent close cannot slip a write through.
func (s *Service) StoreCommunication(ctx context.Context, attorneyID, clientID string, payload map[string]any, kind string, scope models.Scope) (*models.PrivilegedCommunication, error) {
	start := time.Now()
	defer s.metrics.ObserveStore(start)

	if len(payload) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "communication payload is required")
	}
	if kind == "" {
		kind = "legal_advice"
	}
	if scope == "" {
		scope = models.ScopeFull
	}
	if !models.ValidScope(scope) {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid privilege scope: "+string(scope))
	}

	ok, err := s.verifier.Verify(ctx, attorneyID, clientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.violation(ctx, attorneyID, audit.ActionCommunicationStored,
			fmt.Sprintf("store for client %s rejected: no active relationship", clientID))
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "serialize payload")
	}
	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}

	comm := &models.PrivilegedCommunication{
		ID:         uuid.New(),
		AttorneyID: attorneyID,
		ClientID:   clientID,
		Ciphertext: ciphertext,
		Kind:       kind,
		Scope:      scope,
		Status:     models.CommunicationActive,
		CreatedAt:  time.Now().UTC(),
	}

	storeCtx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.store.InsertIfActiveRelationship(storeCtx, comm); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Relationship closed between verify and insert.
			return nil, s.violation(ctx, attorneyID, audit.ActionCommunicationStored,
				fmt.Sprintf("store for client %s rejected: relationship closed during write", clientID))
		}
		return nil, storageErr(err, "store communication")
	}

	s.metrics.IncStored()
	s.audit.Record(ctx, audit.Entry{
		ActorID: attorneyID,
		Action:  audit.ActionCommunicationStored,
		Detail:  fmt.Sprintf("stored %s communication %s for client %s", kind, comm.ID, clientID),
	})
	return comm, nil
}

// Retrieve returns one communication by id, or up to RetrieveLimit newest
// rows for the pair when id is nil. A row that fails to decrypt reports its
// own error; the rest of the batch is unaffected. Destroyed rows come back
// as tombstones with no payload.
func (s *Service) Retrieve(ctx context.Context, attorneyID, clientID string, id *uuid.UUID) ([]Record, error) {
	start := time.Now()
	defer s.metrics.ObserveRetrieve(start)

	ok, err := s.verifier.Verify(ctx, attorneyID, clientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.violation(ctx, attorneyID, audit.ActionCommunicationAccessed,
			fmt.Sprintf("retrieval for client %s rejected: no active relationship", clientID))
	}

	storeCtx, cancel := s.bound(ctx)
	defer cancel()
	var rows []models.PrivilegedCommunication
	if id != nil {
		comm, err := s.store.Get(storeCtx, *id)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "communication not found")
		}
		if err != nil {
			return nil, storageErr(err, "load communication")
		}
		if comm.AttorneyID != attorneyID || comm.ClientID != clientID {
			// A row belonging to someone else is indistinguishable from absent.
			return nil, dErrors.New(dErrors.CodeNotFound, "communication not found")
		}
		rows = []models.PrivilegedCommunication{*comm}
	} else {
		rows, err = s.store.ListByPair(storeCtx, attorneyID, clientID, RetrieveLimit)
		if err != nil {
			return nil, storageErr(err, "list communications")
		}
	}

	records := s.open(rows)

	s.audit.Record(ctx, audit.Entry{
		ActorID: attorneyID,
		Action:  audit.ActionCommunicationAccessed,
		Detail:  fmt.Sprintf("retrieved %d communications for client %s", len(records), clientID),
	})
	return records, nil
}

// open decrypts a batch in parallel, preserving input order. Decrypts are
// pure and lock-free, so only the group bound limits concurrency.
func (s *Service) open(rows []models.PrivilegedCommunication) []Record {
	records := make([]Record, len(rows))
	var g errgroup.Group
	g.SetLimit(decryptParallelism)
	for i := range rows {
		g.Go(func() error {
			row := rows[i]
			rec := Record{
				ID:        row.ID,
				Kind:      row.Kind,
				Scope:     row.Scope,
				Status:    row.Status,
				CreatedAt: row.CreatedAt,
			}
			if !row.Destroyed() {
				if plaintext, err := s.cipher.Decrypt(row.Ciphertext); err != nil {
					rec.Err = err
				} else if err := json.Unmarshal(plaintext, &rec.Payload); err != nil {
					rec.Err = dErrors.Wrap(err, dErrors.CodeDecryption, "decode payload")
				}
			}
			records[i] = rec
			return nil
		})
	}
	_ = g.Wait()
	return records
}

// Destroy tombstones every ACTIVE communication for the pair. Idempotent: a
// repeat call finds nothing ACTIVE and reports zero.
func (s *Service) Destroy(ctx context.Context, attorneyID, clientID, reason string) (int64, error) {
	ok, err := s.verifier.Verify(ctx, attorneyID, clientID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, s.violation(ctx, attorneyID, audit.ActionDataDestroyed,
			fmt.Sprintf("destruction for client %s rejected: no active relationship", clientID))
	}

	storeCtx, cancel := s.bound(ctx)
	defer cancel()
	n, err := s.store.DestroyActive(storeCtx, attorneyID, clientID, models.TombstoneMarker)
	if err != nil {
		return 0, storageErr(err, "destroy communications")
	}

	s.metrics.IncDestroyed(n)
	s.audit.Record(ctx, audit.Entry{
		ActorID: attorneyID,
		Action:  audit.ActionDataDestroyed,
		Detail:  fmt.Sprintf("destroyed %d communications for client %s (reason: %s)", n, clientID, reason),
	})
	return n, nil
}

// CountByAttorney supports compliance reporting.
func (s *Service) CountByAttorney(ctx context.Context, attorneyID string) (int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	n, err := s.store.CountByAttorney(ctx, attorneyID)
	if err != nil {
		return 0, storageErr(err, "count communications")
	}
	return n, nil
}

// violation records a denied privileged operation and returns the coded error.
func (s *Service) violation(ctx context.Context, attorneyID string, action audit.Action, detail string) error {
	s.metrics.IncViolation()
	if s.logger != nil {
		s.logger.WarnContext(ctx, "privilege violation", "actor_id", attorneyID, "action", action)
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID: attorneyID,
		Action:  action,
		Detail:  detail,
		Outcome: audit.OutcomeDenied,
	})
	return dErrors.New(dErrors.CodeRelationshipNotFound, "no active attorney-client relationship")
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func storageErr(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, op+" timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, op+" failed")
}
