// Package access decides who may touch privileged material. The policy is
// fail-closed: any uncertainty, lookup failure or unknown role denies.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lexvault/internal/platform/metrics"
	"lexvault/internal/privilege/audit"
	"lexvault/internal/privilege/models"
	"lexvault/pkg/platform/sentinel"
)

// Role is the requester's claimed role, taken from identity claims.
type Role string

const (
	RoleAttorney  Role = "attorney"
	RoleClient    Role = "client"
	RoleParalegal Role = "paralegal"
)

// Basis states why access was granted, or that it was not.
type Basis string

const (
	BasisAttorneyClientPrivilege Basis = "ATTORNEY_CLIENT_PRIVILEGE"
	BasisClientPrivilegeRights   Basis = "CLIENT_PRIVILEGE_RIGHTS"
	BasisParalegalSupervised     Basis = "PARALEGAL_SUPERVISED_ACCESS"
	BasisDenied                  Basis = "DENIED"
)

// Request describes one access check.
type Request struct {
	UserID       string
	Role         Role
	AttorneyID   string
	ClientID     string
	ResourceType string
}

// Decision is the transient outcome. It is audited, never persisted.
type Decision struct {
	Granted   bool
	Basis     Basis
	DecidedAt time.Time
}

// Directory resolves staff members authorized under an attorney. Satisfied by
// the memory and postgres stores, optionally wrapped in the Redis cache.
type Directory interface {
	// Lookup returns the staff row for (userID, attorneyID), or
	// sentinel.ErrNotFound when the user is not registered under the attorney.
	Lookup(ctx context.Context, userID, attorneyID string) (*models.StaffMember, error)
}

// Controller evaluates the access policy.
type Controller struct {
	directory Directory
	audit     *audit.Log
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(c *Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func New(directory Directory, auditLog *audit.Log, opts ...Option) *Controller {
	c := &Controller{directory: directory, audit: auditLog}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check evaluates a request. It never returns an error: every failure mode
// is a denial, and every decision lands in the audit trail either way.
func (c *Controller) Check(ctx context.Context, req Request) Decision {
	decision := Decision{Basis: BasisDenied, DecidedAt: time.Now().UTC()}

	switch req.Role {
	case RoleAttorney:
		if req.UserID != "" && req.UserID == req.AttorneyID {
			decision.Granted = true
			decision.Basis = BasisAttorneyClientPrivilege
		}
	case RoleClient:
		if req.UserID != "" && req.UserID == req.ClientID {
			decision.Granted = true
			decision.Basis = BasisClientPrivilegeRights
		}
	case RoleParalegal:
		if c.paralegalAuthorized(ctx, req.UserID, req.AttorneyID) {
			decision.Granted = true
			decision.Basis = BasisParalegalSupervised
		}
	}

	c.metrics.IncDecision(string(decision.Basis))
	outcome := audit.OutcomeOK
	if !decision.Granted {
		outcome = audit.OutcomeDenied
	}
	c.audit.Record(ctx, audit.Entry{
		ActorID: req.UserID,
		Action:  audit.ActionAccessCheck,
		Detail: fmt.Sprintf("%s access to %s (attorney %s, client %s): %s",
			req.Role, req.ResourceType, req.AttorneyID, req.ClientID, decision.Basis),
		Outcome: outcome,
	})
	return decision
}

func (c *Controller) paralegalAuthorized(ctx context.Context, userID, attorneyID string) bool {
	if userID == "" || attorneyID == "" {
		return false
	}
	member, err := c.directory.Lookup(ctx, userID, attorneyID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) && c.logger != nil {
			// Directory outage denies rather than guesses.
			c.logger.WarnContext(ctx, "staff directory lookup failed", "user_id", userID, "error", err)
		}
		return false
	}
	return member.EntityType == string(RoleParalegal)
}
