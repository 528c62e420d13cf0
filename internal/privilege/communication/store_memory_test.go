package communication

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lexvault/internal/privilege/models"
	"lexvault/internal/privilege/relationship"
	"lexvault/pkg/platform/sentinel"
)

func ciphertextRow(attorney, client string) *models.PrivilegedCommunication {
	return &models.PrivilegedCommunication{
		ID:         uuid.New(),
		AttorneyID: attorney,
		ClientID:   client,
		Ciphertext: []byte("opaque"),
		Kind:       "legal_advice",
		Scope:      models.ScopeFull,
		Status:     models.CommunicationActive,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestInsertAdmittedOnlyWhileRelationshipActive(t *testing.T) {
	ctx := context.Background()
	rels := relationship.NewInMemory()
	store := NewInMemory(rels)

	rel, err := models.NewPrivilegeRelationship("att_1", "client_1", "case_1", models.ScopeFull, time.Now())
	require.NoError(t, err)
	require.NoError(t, rels.Create(ctx, rel))

	require.NoError(t, store.InsertIfActiveRelationship(ctx, ciphertextRow("att_1", "client_1")))

	_, err = rels.Close(ctx, rel.ID, time.Now())
	require.NoError(t, err)

	late := ciphertextRow("att_1", "client_1")
	err = store.InsertIfActiveRelationship(ctx, late)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	// The refused row left no trace.
	_, err = store.Get(ctx, late.ID)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	n, err := store.CountByAttorney(ctx, "att_1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
