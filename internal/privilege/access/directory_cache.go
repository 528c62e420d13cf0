package access

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	platformredis "lexvault/internal/platform/redis"
	"lexvault/internal/privilege/models"
	"lexvault/pkg/platform/sentinel"
)

// negativeEntry caches directory misses so repeated checks for unregistered
// users do not hammer the store.
const negativeEntry = "-"

// CachedDirectory is a read-through Redis cache in front of a Directory.
// Redis trouble of any kind falls through to the underlying store; the cache
// can only make lookups faster, never change their answer availability.
type CachedDirectory struct {
	inner Directory
	redis *platformredis.Client
	ttl   time.Duration
}

func NewCachedDirectory(inner Directory, client *platformredis.Client, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedDirectory{inner: inner, redis: client, ttl: ttl}
}

func (d *CachedDirectory) Lookup(ctx context.Context, userID, attorneyID string) (*models.StaffMember, error) {
	key := "lexvault:staff:" + attorneyID + ":" + userID

	if cached, err := d.redis.Get(ctx, key).Result(); err == nil {
		if cached == negativeEntry {
			return nil, sentinel.ErrNotFound
		}
		var member models.StaffMember
		if err := json.Unmarshal([]byte(cached), &member); err == nil {
			return &member, nil
		}
	}

	member, err := d.inner.Lookup(ctx, userID, attorneyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		d.redis.Set(ctx, key, negativeEntry, d.ttl)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if encoded, marshalErr := json.Marshal(member); marshalErr == nil {
		d.redis.Set(ctx, key, encoded, d.ttl)
	}
	return member, nil
}

// Invalidate drops a cached entry after a directory change.
func (d *CachedDirectory) Invalidate(ctx context.Context, userID, attorneyID string) {
	d.redis.Del(ctx, "lexvault:staff:"+attorneyID+":"+userID)
}

