package audit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(userID, tenantID string, allowed bool, at time.Time) AccessRecord {
	et := EventPermissionCheck
	if !allowed {
		et = EventAccessDenied
	}
	return AccessRecord{
		Timestamp: at,
		EventType: et,
		UserID:    userID,
		TenantID:  tenantID,
		Allowed:   allowed,
	}
}

func TestRingStampsIDAndTimestamp(t *testing.T) {
	r := NewRing(8)
	r.Record(AccessRecord{UserID: "u1"})

	recs := r.Recent(0)
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].ID)
	assert.False(t, recs[0].Timestamp.IsZero())
}

func TestRingNewestFirst(t *testing.T) {
	r := NewRing(8)
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := record("u1", "t1", true, base.Add(time.Duration(i)*time.Minute))
		rec.Permission = fmt.Sprintf("perm-%d", i)
		r.Record(rec)
	}

	recs := r.Recent(0)
	require.Len(t, recs, 3)
	assert.Equal(t, "perm-2", recs[0].Permission)
	assert.Equal(t, "perm-0", recs[2].Permission)
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing(4)
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		rec := record("u1", "t1", true, base.Add(time.Duration(i)*time.Second))
		rec.Permission = fmt.Sprintf("perm-%d", i)
		r.Record(rec)
	}

	assert.Equal(t, 4, r.Len())
	recs := r.Recent(0)
	require.Len(t, recs, 4)
	assert.Equal(t, "perm-9", recs[0].Permission)
	assert.Equal(t, "perm-6", recs[3].Permission)
}

func TestRingSearchFilters(t *testing.T) {
	r := NewRing(32)
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	r.Record(record("alice", "clinic-a", true, base))
	r.Record(record("alice", "clinic-a", false, base.Add(time.Minute)))
	r.Record(record("bob", "clinic-a", true, base.Add(2*time.Minute)))
	r.Record(record("alice", "clinic-b", false, base.Add(3*time.Minute)))

	assert.Len(t, r.Search(SearchFilter{UserID: "alice"}, 0), 3)
	assert.Len(t, r.Search(SearchFilter{TenantID: "clinic-a"}, 0), 3)
	assert.Len(t, r.Search(SearchFilter{UserID: "alice", TenantID: "clinic-a"}, 0), 2)
	assert.Len(t, r.Search(SearchFilter{DeniedOnly: true}, 0), 2)
	assert.Len(t, r.Search(SearchFilter{EventType: EventAccessDenied}, 0), 2)

	since := base.Add(90 * time.Second)
	until := base.Add(90 * time.Second)
	assert.Len(t, r.Search(SearchFilter{Since: &since}, 0), 2)
	assert.Len(t, r.Search(SearchFilter{Until: &until}, 0), 2)

	// Limit keeps the newest matches.
	limited := r.Search(SearchFilter{UserID: "alice"}, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "clinic-b", limited[0].TenantID)
}

type captureSink struct {
	mu      sync.Mutex
	actions []string
}

func (s *captureSink) LogAction(action string, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
}

func TestRingFansOutToSinks(t *testing.T) {
	sink := &captureSink{}
	r := NewRing(8, sink)
	r.Record(record("u1", "t1", false, time.Now()))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{string(EventAccessDenied)}, sink.actions)
}

func TestRingConcurrentUse(t *testing.T) {
	r := NewRing(64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Record(record("u1", "t1", true, time.Now()))
				r.Recent(10)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 64, r.Len())
}

func TestNopRecorder(t *testing.T) {
	assert.NotPanics(t, func() {
		NopRecorder{}.Record(AccessRecord{UserID: "u1"})
	})
}
