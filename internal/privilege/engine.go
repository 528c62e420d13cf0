// Package privilege composes the engine the orchestration layer talks to.
// The facade adds tracing and keeps callers away from individual services;
// all policy lives below it.
package privilege

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lexvault/internal/privilege/access"
	"lexvault/internal/privilege/audit"
	"lexvault/internal/privilege/communication"
	"lexvault/internal/privilege/destruction"
	"lexvault/internal/privilege/models"
	"lexvault/internal/privilege/relationship"
)

const tracerName = "lexvault/privilege"

// Engine is the privilege-protection engine facade.
type Engine struct {
	relationships  *relationship.Registry
	communications *communication.Service
	accessControl  *access.Controller
	destructions   *destruction.Service
	auditLog       *audit.Log
	tracer         trace.Tracer
}

func NewEngine(
	relationships *relationship.Registry,
	communications *communication.Service,
	accessControl *access.Controller,
	destructions *destruction.Service,
	auditLog *audit.Log,
) *Engine {
	return &Engine{
		relationships:  relationships,
		communications: communications,
		accessControl:  accessControl,
		destructions:   destructions,
		auditLog:       auditLog,
		tracer:         otel.Tracer(tracerName),
	}
}

// VerifyRelationship reports whether an ACTIVE relationship covers the pair.
func (e *Engine) VerifyRelationship(ctx context.Context, attorneyID, clientID string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "privilege.verify_relationship",
		trace.WithAttributes(attribute.String("attorney_id", attorneyID)))
	defer span.End()
	return e.relationships.Verify(ctx, attorneyID, clientID)
}

// EstablishRelationship records a new attorney-client engagement.
func (e *Engine) EstablishRelationship(ctx context.Context, attorneyID, clientID, caseID string, scope models.Scope) (*models.PrivilegeRelationship, error) {
	ctx, span := e.tracer.Start(ctx, "privilege.establish_relationship",
		trace.WithAttributes(attribute.String("attorney_id", attorneyID)))
	defer span.End()
	return e.relationships.Create(ctx, attorneyID, clientID, caseID, scope)
}

// CloseRelationship ends an engagement at case end.
func (e *Engine) CloseRelationship(ctx context.Context, id uuid.UUID) error {
	ctx, span := e.tracer.Start(ctx, "privilege.close_relationship",
		trace.WithAttributes(attribute.String("relationship_id", id.String())))
	defer span.End()
	return e.relationships.Close(ctx, id)
}

// StoreCommunication encrypts and persists a privileged payload.
func (e *Engine) StoreCommunication(ctx context.Context, attorneyID, clientID string, payload map[string]any, kind string, scope models.Scope) (*models.PrivilegedCommunication, error) {
	ctx, span := e.tracer.Start(ctx, "privilege.store_communication",
		trace.WithAttributes(attribute.String("attorney_id", attorneyID)))
	defer span.End()
	return e.communications.StoreCommunication(ctx, attorneyID, clientID, payload, kind, scope)
}

// RetrieveCommunications returns one communication by id or the newest batch.
func (e *Engine) RetrieveCommunications(ctx context.Context, attorneyID, clientID string, id *uuid.UUID) ([]communication.Record, error) {
	ctx, span := e.tracer.Start(ctx, "privilege.retrieve_communications",
		trace.WithAttributes(attribute.String("attorney_id", attorneyID)))
	defer span.End()
	return e.communications.Retrieve(ctx, attorneyID, clientID, id)
}

// DestroyCommunications tombstones every active communication for the pair.
func (e *Engine) DestroyCommunications(ctx context.Context, attorneyID, clientID, reason string) (*destruction.Result, error) {
	ctx, span := e.tracer.Start(ctx, "privilege.destroy_communications",
		trace.WithAttributes(attribute.String("attorney_id", attorneyID)))
	defer span.End()
	return e.destructions.Execute(ctx, attorneyID, clientID, reason)
}

// GetClientContext returns privilege-safe case summaries for a verified pair.
func (e *Engine) GetClientContext(ctx context.Context, attorneyID, clientID string) ([]models.CaseSummary, error) {
	ctx, span := e.tracer.Start(ctx, "privilege.get_client_context",
		trace.WithAttributes(attribute.String("attorney_id", attorneyID)))
	defer span.End()
	return e.relationships.GetContext(ctx, attorneyID, clientID)
}

// CheckAccess evaluates the access policy. Fail-closed, never errors.
func (e *Engine) CheckAccess(ctx context.Context, req access.Request) access.Decision {
	ctx, span := e.tracer.Start(ctx, "privilege.check_access",
		trace.WithAttributes(attribute.String("role", string(req.Role))))
	defer span.End()
	return e.accessControl.Check(ctx, req)
}

// QueryAudit returns matching trail entries newest-first plus a histogram.
func (e *Engine) QueryAudit(ctx context.Context, q audit.Query) ([]audit.Entry, map[audit.Action]int, error) {
	ctx, span := e.tracer.Start(ctx, "privilege.query_audit")
	defer span.End()
	return e.auditLog.Query(ctx, q)
}

// RegisterCase records case metadata at intake.
func (e *Engine) RegisterCase(ctx context.Context, record relationship.CaseRecord) error {
	ctx, span := e.tracer.Start(ctx, "privilege.register_case")
	defer span.End()
	return e.relationships.RegisterCase(ctx, record)
}

// AuditFailures reports lost audit appends since startup, for health checks.
func (e *Engine) AuditFailures() int64 {
	return e.auditLog.Failures()
}

// ComplianceReport summarizes an attorney's privilege posture over the last
// 30 days.
type ComplianceReport struct {
	AttorneyID          string               `json:"attorney_id"`
	GeneratedAt         time.Time            `json:"generated_at"`
	ActiveClients       int                  `json:"active_clients"`
	TotalCommunications int                  `json:"total_communications"`
	AuditActivity       int                  `json:"audit_activity_30d"`
	Violations          int                  `json:"violations_30d"`
	ActionBreakdown     map[audit.Action]int `json:"action_breakdown"`
	Score               float64              `json:"compliance_score"`
	Level               string               `json:"compliance_level"`
	Recommendations     []string             `json:"recommendations"`
}

// Compliance builds a report for the attorney. Scoring starts from a healthy
// baseline and moves on stored volume, recorded violations and trail
// activity, clamped to [1, 10].
func (e *Engine) Compliance(ctx context.Context, attorneyID string) (*ComplianceReport, error) {
	ctx, span := e.tracer.Start(ctx, "privilege.compliance_report",
		trace.WithAttributes(attribute.String("attorney_id", attorneyID)))
	defer span.End()

	now := time.Now().UTC()
	activeClients, err := e.relationships.CountActiveClients(ctx, attorneyID)
	if err != nil {
		return nil, err
	}
	totalComms, err := e.communications.CountByAttorney(ctx, attorneyID)
	if err != nil {
		return nil, err
	}
	entries, histogram, err := e.auditLog.Query(ctx, audit.Query{
		AttorneyID: attorneyID,
		Start:      now.AddDate(0, 0, -30),
		Limit:      audit.DefaultQueryLimit,
	})
	if err != nil {
		return nil, err
	}

	violations := 0
	for _, entry := range entries {
		if entry.Outcome == audit.OutcomeDenied {
			violations++
		}
	}

	score := 8.0
	if totalComms > 0 {
		score += 0.5
	}
	if violations > 0 {
		score -= 2.0
	}
	if len(entries) > 10 {
		score += 0.5
	}
	if score > 10 {
		score = 10
	}
	if score < 1 {
		score = 1
	}

	level := "LOW"
	switch {
	case score >= 8:
		level = "HIGH"
	case score >= 6:
		level = "MEDIUM"
	}

	var recommendations []string
	if violations > 0 {
		recommendations = append(recommendations,
			"Review denied operations: attempted access without an active attorney-client relationship was recorded.")
	}
	if totalComms == 0 {
		recommendations = append(recommendations,
			"No privileged communications stored; confirm intake routes communications through the engine.")
	}
	if len(entries) == 0 {
		recommendations = append(recommendations,
			"No audit activity in the last 30 days; verify audit persistence is healthy.")
	}
	if len(recommendations) == 0 {
		recommendations = append(recommendations, "Privilege controls operating normally.")
	}

	return &ComplianceReport{
		AttorneyID:          attorneyID,
		GeneratedAt:         now,
		ActiveClients:       activeClients,
		TotalCommunications: totalComms,
		AuditActivity:       len(entries),
		Violations:          violations,
		ActionBreakdown:     histogram,
		Score:               score,
		Level:               level,
		Recommendations:     recommendations,
	}, nil
}
