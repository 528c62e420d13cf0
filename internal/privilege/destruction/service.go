// Package destruction orchestrates court-ordered or client-requested erasure
// of privileged communications. The heavy lifting, tombstoning and auditing
// included, lives in the communication service; this layer exists so callers
// with destruction authority never touch the retrieval surface.
package destruction

import (
	"context"
	"log/slog"

	dErrors "lexvault/pkg/domain-errors"
)

// Destroyer is satisfied by communication.Service.
type Destroyer interface {
	Destroy(ctx context.Context, attorneyID, clientID, reason string) (int64, error)
}

// Result reports a completed destruction request.
type Result struct {
	DestroyedCount int64  `json:"destroyed_count"`
	Reason         string `json:"reason"`
}

type Service struct {
	destroyer Destroyer
	logger    *slog.Logger
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(destroyer Destroyer, opts ...Option) *Service {
	s := &Service{destroyer: destroyer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute destroys all active communications for the pair. Idempotent: once
// everything is tombstoned, repeat requests report zero destroyed.
func (s *Service) Execute(ctx context.Context, attorneyID, clientID, reason string) (*Result, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "destruction reason is required")
	}
	n, err := s.destroyer.Destroy(ctx, attorneyID, clientID, reason)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "destruction executed",
			"attorney_id", attorneyID,
			"destroyed_count", n,
			"reason", reason,
		)
	}
	return &Result{DestroyedCount: n, Reason: reason}, nil
}
