package privilege

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lexvault/internal/privilege/access"
	"lexvault/internal/privilege/audit"
	"lexvault/internal/privilege/cipher"
	"lexvault/internal/privilege/communication"
	"lexvault/internal/privilege/destruction"
	"lexvault/internal/privilege/models"
	"lexvault/internal/privilege/relationship"
	dErrors "lexvault/pkg/domain-errors"
)

func newTestEngine(t *testing.T) (*Engine, *access.MemoryDirectory) {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(0xA0 ^ i)
	}
	c, err := cipher.New(key)
	require.NoError(t, err)

	auditLog := audit.New(audit.NewInMemory(), key)
	relStore := relationship.NewInMemory()
	registry := relationship.New(relStore, auditLog)
	comms := communication.New(communication.NewInMemory(relStore), registry, c, auditLog)
	directory := access.NewMemoryDirectory()
	controller := access.New(directory, auditLog)
	destructions := destruction.New(comms)

	return NewEngine(registry, comms, controller, destructions, auditLog), directory
}

// TestEngineLifecycle drives the full flow: intake, storage, retrieval,
// access checks, destruction, audit review and compliance reporting.
func TestEngineLifecycle(t *testing.T) {
	ctx := context.Background()
	engine, directory := newTestEngine(t)

	// No relationship yet: storing is a violation, not a write.
	_, err := engine.StoreCommunication(ctx, "att_1", "client_1",
		map[string]any{"content": "early advice"}, "legal_advice", models.ScopeFull)
	require.True(t, dErrors.HasCode(err, dErrors.CodeRelationshipNotFound))

	// Intake.
	require.NoError(t, engine.RegisterCase(ctx, relationship.CaseRecord{
		CaseSummary: models.CaseSummary{
			CaseID: "case_1",
			Name:   "In re Estate of Doe",
			Type:   "probate",
			Status: "open",
			Facts:  "contested will",
			Issues: "testamentary capacity",
		},
		StrategyNotes: "depose the second witness first",
	}))
	rel, err := engine.EstablishRelationship(ctx, "att_1", "client_1", "case_1", models.ScopeFull)
	require.NoError(t, err)

	ok, err := engine.VerifyRelationship(ctx, "att_1", "client_1")
	require.NoError(t, err)
	require.True(t, ok)

	// Privileged work.
	stored, err := engine.StoreCommunication(ctx, "att_1", "client_1",
		map[string]any{"content": "the will is contestable"}, "legal_advice", models.ScopeFull)
	require.NoError(t, err)

	records, err := engine.RetrieveCommunications(ctx, "att_1", "client_1", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "the will is contestable", records[0].Payload["content"])

	// Context excludes work product.
	cases, err := engine.GetClientContext(ctx, "att_1", "client_1")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, "In re Estate of Doe", cases[0].Name)

	// Access policy.
	decision := engine.CheckAccess(ctx, access.Request{
		UserID: "att_1", Role: access.RoleAttorney, AttorneyID: "att_1", ClientID: "client_1",
		ResourceType: "privileged_communications",
	})
	require.True(t, decision.Granted)

	decision = engine.CheckAccess(ctx, access.Request{
		UserID: "para_1", Role: access.RoleParalegal, AttorneyID: "att_1", ClientID: "client_1",
	})
	require.False(t, decision.Granted)

	require.NoError(t, directory.Register(ctx, models.StaffMember{
		UserID: "para_1", EntityType: "paralegal", AttorneyID: "att_1",
	}))
	decision = engine.CheckAccess(ctx, access.Request{
		UserID: "para_1", Role: access.RoleParalegal, AttorneyID: "att_1", ClientID: "client_1",
	})
	require.True(t, decision.Granted)
	require.Equal(t, access.BasisParalegalSupervised, decision.Basis)

	// Destruction, then the tombstone remains visible.
	result, err := engine.DestroyCommunications(ctx, "att_1", "client_1", "client request")
	require.NoError(t, err)
	require.EqualValues(t, 1, result.DestroyedCount)

	records, err = engine.RetrieveCommunications(ctx, "att_1", "client_1", &stored.ID)
	require.NoError(t, err)
	require.Equal(t, models.CommunicationDestroyed, records[0].Status)
	require.Nil(t, records[0].Payload)

	result, err = engine.DestroyCommunications(ctx, "att_1", "client_1", "client request")
	require.NoError(t, err)
	require.Zero(t, result.DestroyedCount)

	// The trail covers everything, newest first, denial included.
	entries, histogram, err := engine.QueryAudit(ctx, audit.Query{AttorneyID: "att_1"})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		require.True(t, entries[i-1].ID > entries[i].ID)
	}
	require.NotZero(t, histogram[audit.ActionCommunicationStored])
	require.NotZero(t, histogram[audit.ActionDataDestroyed])

	// Close ends the engagement; privileged reads stop.
	require.NoError(t, engine.CloseRelationship(ctx, rel.ID))
	_, err = engine.RetrieveCommunications(ctx, "att_1", "client_1", nil)
	require.True(t, dErrors.HasCode(err, dErrors.CodeRelationshipNotFound))

	require.Zero(t, engine.AuditFailures())
}

func TestComplianceReport(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	t.Run("clean attorney with stored work scores high", func(t *testing.T) {
		_, err := engine.EstablishRelationship(ctx, "att_1", "client_1", "case_1", models.ScopeFull)
		require.NoError(t, err)
		_, err = engine.StoreCommunication(ctx, "att_1", "client_1",
			map[string]any{"content": "advice"}, "", "")
		require.NoError(t, err)

		report, err := engine.Compliance(ctx, "att_1")
		require.NoError(t, err)
		require.Equal(t, 1, report.ActiveClients)
		require.Equal(t, 1, report.TotalCommunications)
		require.Zero(t, report.Violations)
		require.InDelta(t, 8.5, report.Score, 0.001)
		require.Equal(t, "HIGH", report.Level)
		require.Contains(t, report.Recommendations[0], "normally")
	})

	t.Run("violations drag the score and level down", func(t *testing.T) {
		// att_2 never establishes a relationship, then tries to store.
		_, err := engine.StoreCommunication(ctx, "att_2", "client_9",
			map[string]any{"content": "improper"}, "", "")
		require.True(t, dErrors.HasCode(err, dErrors.CodeRelationshipNotFound))

		report, err := engine.Compliance(ctx, "att_2")
		require.NoError(t, err)
		require.Equal(t, 1, report.Violations)
		require.InDelta(t, 6.0, report.Score, 0.001)
		require.Equal(t, "MEDIUM", report.Level)
		require.Contains(t, report.Recommendations[0], "denied operations")
	})

	t.Run("silent attorney gets the audit health recommendation", func(t *testing.T) {
		report, err := engine.Compliance(ctx, "att_idle")
		require.NoError(t, err)
		require.Zero(t, report.AuditActivity)
		require.Equal(t, "HIGH", report.Level)
		recommendations := report.Recommendations
		require.Len(t, recommendations, 2)
	})
}
