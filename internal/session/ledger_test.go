package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gizmo-stock/internal/clock"
	"gizmo-stock/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	counted []string
	failPut bool
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.blobs[key]
	return v, ok, nil
}

func (m *memStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return errors.New("disk full")
	}
	m.blobs[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *memStore) ReplaceCounted(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counted = append([]string(nil), ids...)
	return nil
}

func (m *memStore) Counted(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.counted...)
	sort.Strings(out)
	return out, nil
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, store Store) (*Ledger, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(t0)
	n := 0
	l, err := New(context.Background(), Options{
		Clock: clk,
		Store: store,
		NewID: func() string {
			n++
			return "session-" + string(rune('0'+n))
		},
	})
	require.NoError(t, err)
	return l, clk
}

func TestLedger_Lifecycle(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLedger(t, nil)

	assert.Equal(t, StatusNone, l.Status())
	_, ok := l.Session()
	assert.False(t, ok)

	s, err := l.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-1", s.ID)
	assert.Equal(t, t0, s.StartedAt)
	assert.Equal(t, StatusActive, s.Status)
	assert.Empty(t, s.Changes)
	assert.True(t, l.Active())

	_, err = l.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.ErrorIs(t, err, model.ErrConflict)

	clk.Advance(90 * time.Minute)
	s, err = l.End(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.EndedAt)
	assert.Equal(t, t0.Add(90*time.Minute), *s.EndedAt)
	assert.Equal(t, StatusCompleted, l.Status())

	_, err = l.End(ctx)
	assert.ErrorIs(t, err, model.ErrSessionInactive)
	_, err = l.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	l.Clear(ctx)
	assert.Equal(t, StatusNone, l.Status())
	l.Clear(ctx)
	assert.Equal(t, StatusNone, l.Status())

	s, err = l.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-2", s.ID)
}

func TestLedger_EndWithoutSession(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	_, err := l.End(context.Background())
	assert.ErrorIs(t, err, model.ErrSessionInactive)
}

func TestLedger_AddChangeReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, nil)
	_, err := l.Start(ctx)
	require.NoError(t, err)

	assert.True(t, l.AddChange(ctx, model.ChangeRecord{ProductID: "a", FinalCount: 1}))
	assert.True(t, l.AddChange(ctx, model.ChangeRecord{ProductID: "b", FinalCount: 2}))
	assert.True(t, l.AddChange(ctx, model.ChangeRecord{ProductID: "a", FinalCount: 9}))

	s, _ := l.Session()
	require.Len(t, s.Changes, 2)
	assert.Equal(t, 2, s.TotalChanges)
	assert.Equal(t, 2, s.TotalProducts)
	assert.Equal(t, "a", s.Changes[0].ProductID, "index preserved")
	assert.Equal(t, 9, s.Changes[0].FinalCount, "second call wins")
}

func TestLedger_SameProductTwiceCountsOnce(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, nil)
	_, err := l.Start(ctx)
	require.NoError(t, err)

	l.AddChange(ctx, model.ChangeRecord{ProductID: "x", Reason: model.ReasonCount, FinalCount: 5})
	l.AddChange(ctx, model.ChangeRecord{ProductID: "x", Reason: model.ReasonAddition, FinalCount: 7})

	s, _ := l.Session()
	assert.Equal(t, 1, s.TotalChanges)
	assert.Equal(t, 1, s.TotalProducts)
	assert.Equal(t, model.ReasonAddition, s.Changes[0].Reason)
	assert.Equal(t, 7, s.Changes[0].FinalCount)
}

func TestLedger_MutationIgnoredUnlessActive(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, nil)

	assert.False(t, l.AddChange(ctx, model.ChangeRecord{ProductID: "a"}))
	assert.False(t, l.MarkCounted(ctx, "a"))

	_, err := l.Start(ctx)
	require.NoError(t, err)
	l.AddChange(ctx, model.ChangeRecord{ProductID: "a"})
	_, err = l.End(ctx)
	require.NoError(t, err)

	assert.False(t, l.AddChange(ctx, model.ChangeRecord{ProductID: "b"}))
	assert.False(t, l.MarkCounted(ctx, "b"))

	s, _ := l.Session()
	assert.Equal(t, 1, s.TotalChanges)
	assert.False(t, l.IsCounted("b"))
}

func TestLedger_SessionIsACopy(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, nil)
	_, _ = l.Start(ctx)
	l.AddChange(ctx, model.ChangeRecord{ProductID: "a", FinalCount: 1})

	s, _ := l.Session()
	s.Changes[0].FinalCount = 100

	again, _ := l.Session()
	assert.Equal(t, 1, again.Changes[0].FinalCount)
}

func TestLedger_CountedSet(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, nil)
	_, _ = l.Start(ctx)

	assert.True(t, l.MarkCounted(ctx, "b", "a"))
	l.MarkCounted(ctx, "a")
	assert.Equal(t, []string{"a", "b"}, l.CountedIDs())
	assert.True(t, l.IsCounted("a"))

	l.Clear(ctx)
	assert.Empty(t, l.CountedIDs())
}

func TestLedger_PersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	l, clk := newTestLedger(t, store)
	_, err := l.Start(ctx)
	require.NoError(t, err)
	l.AddChange(ctx, model.ChangeRecord{ProductID: "a", FinalCount: 3})
	l.AddChange(ctx, model.ChangeRecord{ProductID: "b", FinalCount: 4})
	l.MarkCounted(ctx, "a", "c")
	clk.Advance(time.Hour)
	_, err = l.End(ctx)
	require.NoError(t, err)

	restored, _ := newTestLedger(t, store)
	assert.Equal(t, StatusCompleted, restored.Status())
	s, ok := restored.Session()
	require.True(t, ok)
	assert.Equal(t, "session-1", s.ID)
	assert.Equal(t, 2, s.TotalChanges)
	assert.Equal(t, []string{"a", "c"}, restored.CountedIDs())

	assert.False(t, restored.AddChange(ctx, model.ChangeRecord{ProductID: "z"}))

	restored.Clear(ctx)
	_, ok, _ = store.Get(ctx, SnapshotKey)
	assert.False(t, ok)
	assert.Empty(t, store.counted)
}

func TestLedger_MalformedSnapshotDiscarded(t *testing.T) {
	store := newMemStore()
	store.blobs[SnapshotKey] = []byte(`{"status":`)

	l, _ := newTestLedger(t, store)
	assert.Equal(t, StatusNone, l.Status())

	store.blobs[SnapshotKey] = []byte(`{"id":"x","status":"paused"}`)
	l, _ = newTestLedger(t, store)
	assert.Equal(t, StatusNone, l.Status())
}

func TestLedger_PersistFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failPut = true

	l, _ := newTestLedger(t, store)
	_, err := l.Start(ctx)
	require.NoError(t, err)
	assert.True(t, l.AddChange(ctx, model.ChangeRecord{ProductID: "a"}))

	s, _ := l.Session()
	assert.Equal(t, 1, s.TotalChanges)
}
