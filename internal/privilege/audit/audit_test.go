package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	log := New(store, []byte("signing-key"))

	for i := 0; i < 5; i++ {
		log.Record(ctx, Entry{ActorID: "att_1", Action: ActionAccessCheck, Detail: "check"})
	}

	entries, err := store.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		require.True(t, entries[i-1].ID > entries[i].ID)
	}
}

func TestConcurrentAppendsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	log := New(store, []byte("signing-key"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Record(ctx, Entry{ActorID: "att_1", Action: ActionAccessCheck})
		}()
	}
	wg.Wait()

	entries, err := store.List(ctx, Query{Limit: 100})
	require.NoError(t, err)
	require.Len(t, entries, 50)
	seen := make(map[int64]bool, len(entries))
	for _, e := range entries {
		require.False(t, seen[e.ID])
		seen[e.ID] = true
	}
}

func TestQueryFiltersAndHistogram(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	log := New(store, []byte("signing-key"))

	log.Record(ctx, Entry{ActorID: "att_1", Action: ActionCommunicationStored})
	log.Record(ctx, Entry{ActorID: "att_1", Action: ActionCommunicationStored})
	log.Record(ctx, Entry{ActorID: "att_1", Action: ActionDataDestroyed})
	log.Record(ctx, Entry{ActorID: "att_2", Action: ActionCommunicationStored})

	entries, histogram, err := log.Query(ctx, Query{AttorneyID: "att_1"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, 2, histogram[ActionCommunicationStored])
	require.Equal(t, 1, histogram[ActionDataDestroyed])
	require.Zero(t, histogram[ActionAccessCheck])
}

func TestQueryTimeWindow(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	log := New(store, []byte("signing-key"))

	old := time.Now().UTC().AddDate(0, 0, -60)
	log.Record(ctx, Entry{ActorID: "att_1", Action: ActionAccessCheck, Timestamp: old})
	log.Record(ctx, Entry{ActorID: "att_1", Action: ActionAccessCheck})

	entries, _, err := log.Query(ctx, Query{
		AttorneyID: "att_1",
		Start:      time.Now().UTC().AddDate(0, 0, -30),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestQueryLimitDefaultsTo100(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	log := New(store, []byte("signing-key"))

	for i := 0; i < 120; i++ {
		log.Record(ctx, Entry{ActorID: "att_1", Action: ActionAccessCheck})
	}

	entries, _, err := log.Query(ctx, Query{AttorneyID: "att_1"})
	require.NoError(t, err)
	require.Len(t, entries, DefaultQueryLimit)
}

type failingStore struct {
	lists int
}

func (f *failingStore) Append(ctx context.Context, entry *Entry) (int64, error) {
	return 0, errors.New("disk full")
}

func (f *failingStore) List(ctx context.Context, q Query) ([]Entry, error) {
	f.lists++
	return nil, nil
}

func TestRecordNeverFailsTheCaller(t *testing.T) {
	ctx := context.Background()
	log := New(&failingStore{}, []byte("signing-key"))

	// No panic, no error surface; only the failure counter moves.
	log.Record(ctx, Entry{ActorID: "att_1", Action: ActionCommunicationStored})
	log.Record(ctx, Entry{ActorID: "att_1", Action: ActionCommunicationStored})
	require.EqualValues(t, 2, log.Failures())
}

func TestSignatureVerification(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	log := New(store, []byte("signing-key"))

	log.Record(ctx, Entry{ActorID: "att_1", Action: ActionCommunicationStored, Detail: "stored advice"})

	entries, err := store.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, log.Verify(entries[0]))

	tampered := entries[0]
	tampered.Detail = "stored nothing, honest"
	require.False(t, log.Verify(tampered))

	otherKey := New(store, []byte("different-key"))
	require.False(t, otherKey.Verify(entries[0]))
}

func TestSignatureSurvivesMicrosecondStorage(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	log := New(store, []byte("signing-key"))

	// Nanosecond-precision input; TIMESTAMPTZ columns round to microseconds.
	at := time.Date(2026, 8, 30, 12, 0, 0, 123456789, time.UTC)
	log.Record(ctx, Entry{ActorID: "att_1", Action: ActionCommunicationStored, Timestamp: at})

	entries, err := store.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, at.Truncate(time.Microsecond), entries[0].Timestamp)

	roundTripped := entries[0]
	roundTripped.Timestamp = roundTripped.Timestamp.Truncate(time.Microsecond)
	require.True(t, log.Verify(roundTripped))
}

type captureMirror struct {
	mu      sync.Mutex
	entries []Entry
	fail    bool
}

func (m *captureMirror) Publish(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("broker unreachable")
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestMirrorReceivesAppendedEntries(t *testing.T) {
	ctx := context.Background()
	mirror := &captureMirror{}
	log := New(NewInMemory(), []byte("signing-key"), WithMirror(mirror))

	log.Record(ctx, Entry{ActorID: "att_1", Action: ActionDataDestroyed, Detail: "destroyed 2"})

	require.Len(t, mirror.entries, 1)
	require.Equal(t, ActionDataDestroyed, mirror.entries[0].Action)
	require.NotZero(t, mirror.entries[0].ID)
	require.NotEmpty(t, mirror.entries[0].Signature)
}

func TestMirrorFailureDoesNotAffectAppend(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	log := New(store, []byte("signing-key"), WithMirror(&captureMirror{fail: true}))

	log.Record(ctx, Entry{ActorID: "att_1", Action: ActionCommunicationStored})

	entries, err := store.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Zero(t, log.Failures())
}
