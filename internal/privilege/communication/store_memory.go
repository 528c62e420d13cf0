package communication

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"lexvault/internal/privilege/models"
	"lexvault/pkg/platform/sentinel"
)

// RelationshipChecker admits a write only while an ACTIVE relationship covers
// the pair, holding the relationship store's own lock across the callback so
// a concurrent close cannot commit mid-admission. Satisfied by
// relationship.InMemory; the PostgreSQL pair gets the same guarantee from a
// single INSERT ... WHERE EXISTS statement instead.
type RelationshipChecker interface {
	WhileActive(ctx context.Context, attorneyID, clientID string, fn func() error) error
}

// InMemory keeps ciphertext rows in a map. Inserts run inside the
// relationship store's admission callback, so the check and the write are
// atomic against relationship closure.
type InMemory struct {
	mu   sync.Mutex
	rels RelationshipChecker
	rows map[uuid.UUID]*models.PrivilegedCommunication
}

func NewInMemory(rels RelationshipChecker) *InMemory {
	return &InMemory{
		rels: rels,
		rows: make(map[uuid.UUID]*models.PrivilegedCommunication),
	}
}

func (m *InMemory) InsertIfActiveRelationship(ctx context.Context, comm *models.PrivilegedCommunication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rels.WhileActive(ctx, comm.AttorneyID, comm.ClientID, func() error {
		clone := *comm
		clone.Ciphertext = append([]byte(nil), comm.Ciphertext...)
		m.rows[comm.ID] = &clone
		return nil
	})
}

func (m *InMemory) Get(ctx context.Context, id uuid.UUID) (*models.PrivilegedCommunication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *row
	clone.Ciphertext = append([]byte(nil), row.Ciphertext...)
	return &clone, nil
}

func (m *InMemory) ListByPair(ctx context.Context, attorneyID, clientID string, limit int) ([]models.PrivilegedCommunication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PrivilegedCommunication
	for _, row := range m.rows {
		if row.AttorneyID == attorneyID && row.ClientID == clientID {
			clone := *row
			clone.Ciphertext = append([]byte(nil), row.Ciphertext...)
			out = append(out, clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemory) DestroyActive(ctx context.Context, attorneyID, clientID string, tombstone []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.AttorneyID == attorneyID && row.ClientID == clientID && row.Status == models.CommunicationActive {
			row.Status = models.CommunicationDestroyed
			row.Ciphertext = append([]byte(nil), tombstone...)
			n++
		}
	}
	return n, nil
}

func (m *InMemory) CountByAttorney(ctx context.Context, attorneyID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.AttorneyID == attorneyID {
			n++
		}
	}
	return n, nil
}
