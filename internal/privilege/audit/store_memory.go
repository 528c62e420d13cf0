package audit

import (
	"context"
	"sort"
	"sync"
)

// InMemory keeps the trail in process memory. Used by tests and by
// single-node deployments without PostgreSQL configured.
type InMemory struct {
	mu      sync.Mutex
	nextID  int64
	entries []Entry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

// Append assigns the next id under the store lock, so concurrent appends get
// monotonically increasing, non-colliding ids.
func (s *InMemory) Append(ctx context.Context, entry *Entry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	s.entries = append(s.entries, *entry)
	return entry.ID, nil
}

func (s *InMemory) List(ctx context.Context, q Query) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	var matched []Entry
	for _, e := range s.entries {
		if q.AttorneyID != "" && e.ActorID != q.AttorneyID {
			continue
		}
		if !q.Start.IsZero() && e.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && e.Timestamp.After(q.End) {
			continue
		}
		matched = append(matched, e)
	}

	// Newest first; ids break timestamp ties since appends are ordered.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
