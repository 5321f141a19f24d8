package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives audit events for external retention. Implementations must not
// block; delivery is fire-and-forget and failures are swallowed.
type Sink interface {
	LogAction(action string, metadata map[string]any)
}

// Recorder accepts audit records.
type Recorder interface {
	Record(rec AccessRecord)
}

// NopRecorder discards everything. Used when auditing is not configured.
type NopRecorder struct{}

func (NopRecorder) Record(AccessRecord) {}

// Ring is a bounded, append-only retention buffer of AccessRecords. Once full
// the oldest records are overwritten. It is safe for concurrent use and
// optionally fans records out to external sinks.
type Ring struct {
	mu    sync.RWMutex
	buf   []AccessRecord
	next  int
	full  bool
	sinks []Sink
}

// NewRing creates a ring retaining at most capacity records.
func NewRing(capacity int, sinks ...Sink) *Ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ring{buf: make([]AccessRecord, capacity), sinks: sinks}
}

// Record appends a record, stamping ID and Timestamp when unset.
func (r *Ring) Record(rec AccessRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	r.mu.Lock()
	r.buf[r.next] = rec
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	sinks := r.sinks
	r.mu.Unlock()

	for _, s := range sinks {
		s.LogAction(string(rec.EventType), map[string]any{
			"user_id":    rec.UserID,
			"tenant_id":  rec.TenantID,
			"permission": rec.Permission,
			"allowed":    rec.Allowed,
			"reason":     rec.Reason,
			"actor":      rec.Actor,
		})
	}
}

// Recent returns up to limit of the newest records, newest first.
func (r *Ring) Recent(limit int) []AccessRecord {
	return r.Search(SearchFilter{}, limit)
}

// Search returns up to limit matching records, newest first.
func (r *Ring) Search(filter SearchFilter, limit int) []AccessRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]AccessRecord, 0, limit)
	for i := 1; i <= size && len(out) < limit; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		rec := r.buf[idx]
		if filter.matches(&rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the number of retained records.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}
