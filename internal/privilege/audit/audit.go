// Package audit maintains the append-only trail of every privileged action.
// Appends must never fail the operation being audited: persistence failures
// are absorbed, counted and logged so a logging outage cannot block legal
// work, while the failure counter keeps the compliance gap observable.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"lexvault/internal/platform/metrics"
)

// Store persists entries. Append assigns and returns the entry id atomically;
// implementations must not expose read-then-increment id allocation.
type Store interface {
	Append(ctx context.Context, entry *Entry) (int64, error)
	List(ctx context.Context, q Query) ([]Entry, error)
}

// Mirror forwards appended entries to an external compliance sink. Mirroring
// is best-effort; errors are counted, never propagated.
type Mirror interface {
	Publish(ctx context.Context, entry Entry) error
}

// Log is the engine's audit trail. Every component writes through it; nothing
// mutates persisted entries except via append.
type Log struct {
	store    Store
	signer   []byte
	logger   *slog.Logger
	metrics  *metrics.Metrics
	mirror   Mirror
	failures atomic.Int64
}

type Option func(l *Log)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

func WithMirror(mirror Mirror) Option {
	return func(l *Log) { l.mirror = mirror }
}

// New constructs the audit log. signingKey comes from the key manager and
// makes the trail tamper-evident; it is read-only after construction.
func New(store Store, signingKey []byte, opts ...Option) *Log {
	key := make([]byte, len(signingKey))
	copy(key, signingKey)
	l := &Log{store: store, signer: key}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an entry. It never returns an error: a failed append is a
// compliance gap, not an operational failure, and surfaces through Failures
// and the lexvault_audit_write_failures_total metric instead.
func (l *Log) Record(ctx context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	// TIMESTAMPTZ keeps microseconds; persist only what a read can return.
	entry.Timestamp = entry.Timestamp.Truncate(time.Microsecond)
	if entry.Outcome == "" {
		entry.Outcome = OutcomeOK
	}
	entry.Signature = l.sign(entry)

	if _, err := l.store.Append(ctx, &entry); err != nil {
		l.failures.Add(1)
		l.metrics.IncAuditWriteFailure()
		if l.logger != nil {
			l.logger.WarnContext(ctx, "audit write failed",
				"action", entry.Action,
				"actor_id", entry.ActorID,
				"error", err,
			)
		}
		return
	}

	if l.mirror != nil {
		if err := l.mirror.Publish(ctx, entry); err != nil {
			l.metrics.IncAuditMirrorFailure()
			if l.logger != nil {
				l.logger.WarnContext(ctx, "audit mirror publish failed",
					"action", entry.Action,
					"error", err,
				)
			}
		}
	}
}

// Query returns matching entries newest-first plus a histogram of action
// types over the returned window.
func (l *Log) Query(ctx context.Context, q Query) ([]Entry, map[Action]int, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	entries, err := l.store.List(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	histogram := make(map[Action]int, len(entries))
	for _, e := range entries {
		histogram[e.Action]++
	}
	return entries, histogram, nil
}

// Verify recomputes an entry's signature. False means the persisted row no
// longer matches what was appended.
func (l *Log) Verify(entry Entry) bool {
	return hmac.Equal(entry.Signature, l.sign(entry))
}

// Failures reports how many appends were lost since startup. Exposed on the
// health endpoint so an audit outage cannot stay invisible.
func (l *Log) Failures() int64 {
	return l.failures.Load()
}

// sign covers every field fixed at append time. The id is storage-assigned
// afterwards and deliberately excluded; the timestamp is signed at microsecond
// precision so a TIMESTAMPTZ round trip cannot invalidate the signature.
func (l *Log) sign(entry Entry) []byte {
	mac := hmac.New(sha256.New, l.signer)
	mac.Write([]byte(entry.ActorID))
	mac.Write([]byte{0})
	mac.Write([]byte(entry.Action))
	mac.Write([]byte{0})
	mac.Write([]byte(entry.Detail))
	mac.Write([]byte{0})
	mac.Write([]byte(entry.Outcome))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(entry.Timestamp.Truncate(time.Microsecond).UnixNano(), 10)))
	return mac.Sum(nil)
}
