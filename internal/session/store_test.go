package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales/internal/core"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)}
	access := NewAccess([]string{"@Boss"}, []string{"anna", "boss"})
	return NewStore(access, 10, ttl, WithClock(c.now)), c
}

func TestAccess_RoleFor(t *testing.T) {
	access := NewAccess([]string{"@Head_One", " "}, []string{"Anna", "head_one"})

	tests := []struct {
		username string
		role     Role
		ok       bool
	}{
		{"head_one", RoleHead, true},
		{"@HEAD_ONE", RoleHead, true},
		{"anna", RoleManager, true},
		{"@anna", RoleManager, true},
		{"stranger", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			role, ok := access.RoleFor(tt.username)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.role, role)
		})
	}
}

func TestStore_EstablishAndGet(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	id, err := s.Establish(ctx, core.Operator{ID: 42, Username: "@Anna", FullName: "Anna K"})
	require.NoError(t, err)
	assert.Equal(t, RoleManager, id.Role)
	assert.False(t, id.IsHead())

	head, err := s.Establish(ctx, core.Operator{ID: 1, Username: "boss", FullName: "The Boss"})
	require.NoError(t, err)
	assert.True(t, head.IsHead())

	got, err := s.Get(42)
	require.NoError(t, err)
	assert.Equal(t, "Anna K", got.FullName)
	assert.Equal(t, 2, s.Len())
}

func TestStore_EstablishRefused(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	_, err := s.Establish(context.Background(), core.Operator{ID: 5, Username: "mallory"})
	assert.ErrorIs(t, err, core.ErrAccessDenied)

	_, err = s.Establish(context.Background(), core.Operator{ID: 0, Username: "anna"})
	assert.ErrorIs(t, err, core.ErrInvalidOperator)
	assert.Zero(t, s.Len())
}

func TestStore_StaleSession(t *testing.T) {
	s, c := newTestStore(t, time.Hour)
	ctx := context.Background()

	_, err := s.Get(42)
	assert.ErrorIs(t, err, core.ErrStaleSession)
	_, err = s.Tally(42, "membrane")
	assert.ErrorIs(t, err, core.ErrStaleSession)

	_, err = s.Establish(ctx, core.Operator{ID: 42, Username: "anna"})
	require.NoError(t, err)

	// activity keeps the session alive
	c.advance(50 * time.Minute)
	_, err = s.Get(42)
	require.NoError(t, err)
	c.advance(50 * time.Minute)
	_, err = s.Get(42)
	require.NoError(t, err)

	c.advance(61 * time.Minute)
	_, err = s.Get(42)
	assert.ErrorIs(t, err, core.ErrStaleSession)

	_, err = s.Establish(ctx, core.Operator{ID: 42, Username: "anna"})
	require.NoError(t, err)
	s.End(ctx, 42)
	_, err = s.Get(42)
	assert.ErrorIs(t, err, core.ErrStaleSession)
}

func TestStore_TallyAndRefresh(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	_, err := s.Establish(ctx, core.Operator{ID: 42, Username: "anna", FullName: "Anna K"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = s.Tally(42, "mts_super")
		require.NoError(t, err)
	}
	n, err := s.Tally(42, "membrane")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// signing in again keeps the tally and updates the name
	_, err = s.Establish(ctx, core.Operator{ID: 42, Username: "anna", FullName: "Anna Karenina"})
	require.NoError(t, err)

	snap, err := s.Snapshot(42)
	require.NoError(t, err)
	assert.Equal(t, "Anna Karenina", snap.FullName)
	assert.Equal(t, map[string]int64{"mts_super": 3, "membrane": 1}, snap.Tally)
	assert.Equal(t, int64(4), snap.Total)

	snap.Tally["mts_super"] = 100
	again, err := s.Snapshot(42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.Tally["mts_super"], "snapshot must be a copy")
}

func TestStore_ConcurrentTally(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	_, err := s.Establish(context.Background(), core.Operator{ID: 42, Username: "anna"})
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Tally(42, "membrane")
		}()
	}
	wg.Wait()

	snap, err := s.Snapshot(42)
	require.NoError(t, err)
	assert.Equal(t, int64(n), snap.Tally["membrane"])
}

func TestStore_CleanExpired(t *testing.T) {
	s, c := newTestStore(t, time.Minute)
	_, err := s.Establish(context.Background(), core.Operator{ID: 42, Username: "anna"})
	require.NoError(t, err)

	c.advance(2 * time.Minute)
	assert.Equal(t, 1, s.CleanExpired())
	assert.Zero(t, s.Len())
}
