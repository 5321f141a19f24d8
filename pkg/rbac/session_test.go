package rbac

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced Clock shared by the package tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestSessionStartAndGet(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	tracker := NewSessionTracker(DefaultSessionDuration, clock)

	s := tracker.Start("user-1", "clinic-a", []string{"system-clinician"}, []string{"patients:view"}, RoleConstraints{})
	require.NotEmpty(t, s.ID)
	assert.Equal(t, clock.Now(), s.StartedAt)

	got, ok := tracker.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, []string{"system-clinician"}, got.RoleIDs)

	_, ok = tracker.Get("nope")
	assert.False(t, ok)
}

func TestSessionTouchExtendsLife(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	tracker := NewSessionTracker(8*time.Hour, clock)

	s := tracker.Start("user-1", "clinic-a", nil, nil, RoleConstraints{})

	clock.Advance(7 * time.Hour)
	require.True(t, tracker.Touch(s.ID))

	// Eight idle hours from the touch, not from the start.
	clock.Advance(7 * time.Hour)
	assert.Equal(t, 0, tracker.Sweep())
	_, ok := tracker.Get(s.ID)
	assert.True(t, ok)

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, tracker.Sweep())
	_, ok = tracker.Get(s.ID)
	assert.False(t, ok)
}

func TestSessionSweepHonorsConstraintDuration(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	tracker := NewSessionTracker(8*time.Hour, clock)

	short := tracker.Start("user-1", "clinic-a", nil, nil, RoleConstraints{MaxSessionDuration: time.Hour})
	long := tracker.Start("user-2", "clinic-a", nil, nil, RoleConstraints{})

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, tracker.Sweep())

	_, ok := tracker.Get(short.ID)
	assert.False(t, ok)
	_, ok = tracker.Get(long.ID)
	assert.True(t, ok)
}

func TestSessionEndCallback(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	tracker := NewSessionTracker(time.Hour, clock)

	var ended []string
	tracker.OnSessionEnd(func(s AccessSession) { ended = append(ended, s.ID) })

	a := tracker.Start("user-1", "clinic-a", nil, nil, RoleConstraints{})
	b := tracker.Start("user-1", "clinic-b", nil, nil, RoleConstraints{})

	require.True(t, tracker.End(a.ID))
	assert.False(t, tracker.End(a.ID))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, tracker.Sweep())

	assert.ElementsMatch(t, []string{a.ID, b.ID}, ended)
}

func TestEndUserSessions(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	tracker := NewSessionTracker(time.Hour, clock)

	tracker.Start("user-1", "clinic-a", nil, nil, RoleConstraints{})
	tracker.Start("user-1", "clinic-a", nil, nil, RoleConstraints{})
	tracker.Start("user-1", "clinic-b", nil, nil, RoleConstraints{})
	tracker.Start("user-2", "clinic-a", nil, nil, RoleConstraints{})

	assert.Equal(t, 2, tracker.CountUser("user-1", "clinic-a"))
	assert.Equal(t, 2, tracker.EndUserSessions("user-1", "clinic-a"))
	assert.Equal(t, 0, tracker.CountUser("user-1", "clinic-a"))

	// Empty tenant ends everything the user still has.
	assert.Equal(t, 1, tracker.EndUserSessions("user-1", ""))
	assert.Len(t, tracker.Active(""), 1)
}

func TestActiveFiltersByTenant(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	tracker := NewSessionTracker(time.Hour, clock)

	tracker.Start("user-1", "clinic-a", nil, nil, RoleConstraints{})
	clock.Advance(time.Minute)
	tracker.Start("user-2", "clinic-a", nil, nil, RoleConstraints{})
	tracker.Start("user-3", "clinic-b", nil, nil, RoleConstraints{})

	active := tracker.Active("clinic-a")
	require.Len(t, active, 2)
	// Ordered by start time.
	assert.Equal(t, "user-1", active[0].UserID)
	assert.Equal(t, "user-2", active[1].UserID)

	assert.Len(t, tracker.Active(""), 3)
}
