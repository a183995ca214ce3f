package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gizmo-stock/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite://:memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const imageKey = "gizmo.imageCache"

func TestOpen_RejectsUnknownDSN(t *testing.T) {
	_, err := Open("mysql://localhost/db", nil)
	assert.ErrorContains(t, err, "unsupported STATE_DSN")
}

func TestBlobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, imageKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, imageKey, []byte(`{"a":1}`)))
	require.NoError(t, s.Put(ctx, imageKey, []byte(`{"a":2}`)))

	got, ok, err := s.Get(ctx, imageKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"a":2}`, string(got))

	require.NoError(t, s.Delete(ctx, imageKey))
	require.NoError(t, s.Delete(ctx, imageKey))
	_, ok, err = s.Get(ctx, imageKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCounted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceCounted(ctx, []string{"p2", "p1", "p1"}))
	ids, err := s.Counted(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)

	require.NoError(t, s.ReplaceCounted(ctx, []string{"p3"}))
	ids, err = s.Counted(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, ids)

	require.NoError(t, s.ReplaceCounted(ctx, nil))
	ids, err = s.Counted(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendAudit(ctx,
		AuditEntry{ProductID: "p1", Field: "price", Previous: model.Float(10), Next: model.Float(12), ChangedBy: "alice", At: at},
		AuditEntry{ProductID: "p2", Field: "cost", Previous: nil, Next: model.Float(3), At: at.Add(time.Minute)},
		AuditEntry{ProductID: "p1", Field: "cost", Previous: model.Float(4), Next: model.Float(5), At: at.Add(2 * time.Minute)},
	))
	require.NoError(t, s.AppendAudit(ctx))

	all, err := s.Audit(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "cost", all[0].Field)
	assert.Equal(t, "p1", all[0].ProductID)

	p1, err := s.Audit(ctx, "p1", 1)
	require.NoError(t, err)
	require.Len(t, p1, 1)
	assert.InDelta(t, 5.0, *p1[0].Next, 1e-9)

	p2, err := s.Audit(ctx, "p2", 0)
	require.NoError(t, err)
	require.Len(t, p2, 1)
	assert.Nil(t, p2[0].Previous)
}
