package lock

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/musicbingo/go/internal/live/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsStaleBoundary(t *testing.T) {
	l := Lock{TabID: "a", LastSeenMs: 1000}
	staleMs := int64(30000)

	assert.False(t, IsStale(l, 1000, staleMs))
	assert.False(t, IsStale(l, 31000, staleMs), "exactly staleMs is not stale")
	assert.True(t, IsStale(l, 31001, staleMs))
}

func TestTryAcquire(t *testing.T) {
	held := &Lock{TabID: "a", LastSeenMs: 0}
	tests := []struct {
		name    string
		current *Lock
		tab     string
		force   bool
		now     int64
		want    bool
	}{
		{name: "free", current: nil, tab: "b", want: true},
		{name: "own", current: held, tab: "a", now: 1, want: true},
		{name: "fresh conflict", current: held, tab: "b", now: 30000, want: false},
		{name: "stale conflict", current: held, tab: "b", now: 30001, want: true},
		{name: "forced", current: held, tab: "b", force: true, now: 1, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TryAcquire(tt.current, tt.tab, tt.force, tt.now, 30000))
		})
	}
}

func TestLockContentionScenario(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
	m := NewManager("session-1", kv.NewMemory(), clock, 0)

	res, err := m.Acquire(ctx, "tab-a", false)
	require.NoError(t, err)
	assert.True(t, res.Acquired)

	res, err = m.Acquire(ctx, "tab-b", false)
	require.NoError(t, err)
	assert.False(t, res.Acquired)
	assert.Equal(t, "tab-a", res.Lock.TabID)

	clock.Advance(DefaultStaleAfter)
	res, err = m.Acquire(ctx, "tab-b", false)
	require.NoError(t, err)
	assert.False(t, res.Acquired, "still fresh at exactly the stale window")

	clock.Advance(time.Millisecond)
	res, err = m.Acquire(ctx, "tab-b", false)
	require.NoError(t, err)
	assert.True(t, res.Acquired)
	assert.Equal(t, "tab-b", res.Lock.TabID)
}

func TestForceAcquire(t *testing.T) {
	ctx := context.Background()
	m := NewManager("session-1", kv.NewMemory(), clockwork.NewFakeClock(), 0)

	_, err := m.Acquire(ctx, "tab-a", false)
	require.NoError(t, err)

	res, err := m.Acquire(ctx, "tab-b", true)
	require.NoError(t, err)
	assert.True(t, res.Acquired)

	holds, err := m.Holds(ctx, "tab-a")
	require.NoError(t, err)
	assert.False(t, holds)
}

func TestHeartbeat(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(0))
	m := NewManager("session-1", kv.NewMemory(), clock, 0)

	status, _, err := m.Heartbeat(ctx, "tab-a")
	require.NoError(t, err)
	assert.Equal(t, StatusFree, status)

	_, err = m.Acquire(ctx, "tab-a", false)
	require.NoError(t, err)

	clock.Advance(DefaultHeartbeatInterval)
	status, l, err := m.Heartbeat(ctx, "tab-a")
	require.NoError(t, err)
	assert.Equal(t, StatusOwner, status)
	assert.Equal(t, DefaultHeartbeatInterval.Milliseconds(), l.LastSeenMs)

	status, l, err = m.Heartbeat(ctx, "tab-b")
	require.NoError(t, err)
	assert.Equal(t, StatusReadOnly, status)
	assert.Equal(t, "tab-a", l.TabID)

	clock.Advance(DefaultStaleAfter + time.Millisecond)
	status, _, err = m.Heartbeat(ctx, "tab-b")
	require.NoError(t, err)
	assert.Equal(t, StatusPossiblyStale, status)
}

func TestHeartbeatAfterTakeoverDoesNotRewrite(t *testing.T) {
	ctx := context.Background()
	m := NewManager("session-1", kv.NewMemory(), clockwork.NewFakeClock(), 0)

	_, err := m.Acquire(ctx, "tab-a", false)
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "tab-b", true)
	require.NoError(t, err)

	status, _, err := m.Heartbeat(ctx, "tab-a")
	require.NoError(t, err)
	assert.Equal(t, StatusReadOnly, status)

	cur, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tab-b", cur.TabID)
}

func TestReleaseOnlyOwnLock(t *testing.T) {
	ctx := context.Background()
	m := NewManager("session-1", kv.NewMemory(), clockwork.NewFakeClock(), 0)

	_, err := m.Acquire(ctx, "tab-a", false)
	require.NoError(t, err)

	released, err := m.Release(ctx, "tab-b")
	require.NoError(t, err)
	assert.False(t, released)

	cur, err := m.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)

	released, err = m.Release(ctx, "tab-a")
	require.NoError(t, err)
	assert.True(t, released)

	cur, err = m.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestMalformedLockIsAbsent(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Put(ctx, kv.LockKey("session-1"), []byte(`{"tab_id":""}`)))
	m := NewManager("session-1", store, clockwork.NewFakeClock(), 0)

	cur, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)

	res, err := m.Acquire(ctx, "tab-a", false)
	require.NoError(t, err)
	assert.True(t, res.Acquired)
}
