package access

import (
	"context"
	"sync"

	"lexvault/internal/privilege/models"
	"lexvault/pkg/platform/sentinel"
)

type memberKey struct {
	userID     string
	attorneyID string
}

// MemoryDirectory is the in-process staff directory.
type MemoryDirectory struct {
	mu      sync.RWMutex
	members map[memberKey]models.StaffMember
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{members: make(map[memberKey]models.StaffMember)}
}

func (d *MemoryDirectory) Lookup(ctx context.Context, userID, attorneyID string) (*models.StaffMember, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	member, ok := d.members[memberKey{userID, attorneyID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := member
	return &clone, nil
}

// Register adds or replaces a staff entry.
func (d *MemoryDirectory) Register(ctx context.Context, member models.StaffMember) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[memberKey{member.UserID, member.AttorneyID}] = member
	return nil
}
