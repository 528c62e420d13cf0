package relationship

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"lexvault/internal/privilege/models"
	"lexvault/pkg/platform/sentinel"
)

// InMemory keeps relationships and case records in maps. Used in tests and
// single-process deployments without a DSN configured.
type InMemory struct {
	mu    sync.RWMutex
	rels  map[uuid.UUID]*models.PrivilegeRelationship
	cases map[string]CaseRecord
}

func NewInMemory() *InMemory {
	return &InMemory{
		rels:  make(map[uuid.UUID]*models.PrivilegeRelationship),
		cases: make(map[string]CaseRecord),
	}
}

func (m *InMemory) Create(ctx context.Context, rel *models.PrivilegeRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rels {
		if existing.Status == models.RelationshipActive &&
			existing.AttorneyID == rel.AttorneyID &&
			existing.ClientID == rel.ClientID &&
			existing.CaseID == rel.CaseID {
			return sentinel.ErrConflict
		}
	}
	clone := *rel
	m.rels[rel.ID] = &clone
	return nil
}

func (m *InMemory) ActiveExists(ctx context.Context, attorneyID, clientID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked(attorneyID, clientID), nil
}

// WhileActive runs fn under the store's write lock, but only while an ACTIVE
// relationship covers the pair. A concurrent Close blocks until fn returns,
// so anything fn commits was admitted under a live relationship. Returns
// sentinel.ErrNotFound without running fn when no such relationship exists.
func (m *InMemory) WhileActive(ctx context.Context, attorneyID, clientID string, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeLocked(attorneyID, clientID) {
		return sentinel.ErrNotFound
	}
	return fn()
}

func (m *InMemory) activeLocked(attorneyID, clientID string) bool {
	for _, rel := range m.rels {
		if rel.Status == models.RelationshipActive &&
			rel.AttorneyID == attorneyID && rel.ClientID == clientID {
			return true
		}
	}
	return false
}

func (m *InMemory) Close(ctx context.Context, id uuid.UUID, closedAt time.Time) (*models.PrivilegeRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.rels[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if rel.Status != models.RelationshipActive {
		return nil, sentinel.ErrInvalidState
	}
	rel.Status = models.RelationshipClosed
	rel.ClosedAt = &closedAt
	clone := *rel
	return &clone, nil
}

func (m *InMemory) Cases(ctx context.Context, attorneyID, clientID string) ([]models.CaseSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []models.CaseSummary
	for _, rel := range m.rels {
		if rel.AttorneyID != attorneyID || rel.ClientID != clientID || seen[rel.CaseID] {
			continue
		}
		seen[rel.CaseID] = true
		if record, ok := m.cases[rel.CaseID]; ok {
			// CaseSummary carries no strategy notes field; the copy cannot leak them.
			out = append(out, record.CaseSummary)
		}
	}
	return out, nil
}

func (m *InMemory) CountActiveClients(ctx context.Context, attorneyID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clients := make(map[string]bool)
	for _, rel := range m.rels {
		if rel.Status == models.RelationshipActive && rel.AttorneyID == attorneyID {
			clients[rel.ClientID] = true
		}
	}
	return len(clients), nil
}

func (m *InMemory) UpsertCase(ctx context.Context, record CaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[record.CaseID] = record
	return nil
}
