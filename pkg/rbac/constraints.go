package rbac

import (
	"fmt"
	"time"
)

// CheckConstraints evaluates a role's constraint set against the request
// context at the given instant. Constraints are evaluated per grant: a
// request is accepted when some active grant both carries the permission and
// satisfies its own role's constraints.
//
// IP and device restrictions fail closed: a defined restriction with no
// corresponding context attribute denies.
func CheckConstraints(c *RoleConstraints, reqCtx *CheckContext, now time.Time) bool {
	if c == nil || c.IsZero() {
		return true
	}
	if len(c.TimeWindows) > 0 && !anyWindowOpen(c.TimeWindows, now) {
		return false
	}
	if len(c.AllowedIPPatterns) > 0 {
		if reqCtx == nil || reqCtx.IPAddress == "" {
			return false
		}
		ok := false
		for _, pat := range c.AllowedIPPatterns {
			if matchIP(pat, reqCtx.IPAddress) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(c.AllowedDeviceIDs) > 0 {
		if reqCtx == nil || reqCtx.DeviceID == "" {
			return false
		}
		ok := false
		for _, id := range c.AllowedDeviceIDs {
			if id == reqCtx.DeviceID {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// ContextSensitive reports whether the constraint set consults the request
// context or the clock during a permission check. Decisions gated by such a
// set hold only for the request that produced them.
func (c *RoleConstraints) ContextSensitive() bool {
	if c == nil {
		return false
	}
	return len(c.TimeWindows) > 0 ||
		len(c.AllowedIPPatterns) > 0 ||
		len(c.AllowedDeviceIDs) > 0
}

// anyWindowOpen reports whether now falls inside at least one window.
// Multiple windows on one role are OR'd.
func anyWindowOpen(windows []TimeWindow, now time.Time) bool {
	for _, w := range windows {
		if windowOpen(w, now) {
			return true
		}
	}
	return false
}

func windowOpen(w TimeWindow, now time.Time) bool {
	loc := time.UTC
	if w.Timezone != "" {
		l, err := time.LoadLocation(w.Timezone)
		if err != nil {
			// A malformed timezone should have been rejected at save time;
			// treat the window as closed rather than open.
			return false
		}
		loc = l
	}
	local := now.In(loc)

	dayOK := len(w.Days) == 0
	for _, d := range w.Days {
		if local.Weekday() == d {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}

	start, err1 := minuteOfDay(w.Start)
	end, err2 := minuteOfDay(w.End)
	if err1 != nil || err2 != nil {
		return false
	}
	cur := local.Hour()*60 + local.Minute()
	return cur >= start && cur <= end // inclusive on both ends
}

func minuteOfDay(hhmm string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range: %s", hhmm)
	}
	return h*60 + m, nil
}

// ValidateConstraints rejects malformed constraint definitions at role-save
// time.
func ValidateConstraints(c *RoleConstraints) error {
	if c == nil {
		return nil
	}
	for _, w := range c.TimeWindows {
		if _, err := minuteOfDay(w.Start); err != nil {
			return fmt.Errorf("%w: time window start %q", ErrConfiguration, w.Start)
		}
		if _, err := minuteOfDay(w.End); err != nil {
			return fmt.Errorf("%w: time window end %q", ErrConfiguration, w.End)
		}
		if w.Timezone != "" {
			if _, err := time.LoadLocation(w.Timezone); err != nil {
				return fmt.Errorf("%w: unknown timezone %q", ErrConfiguration, w.Timezone)
			}
		}
		for _, d := range w.Days {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: invalid weekday %d", ErrConfiguration, d)
			}
		}
	}
	if c.MaxConcurrentSessions < 0 {
		return fmt.Errorf("%w: negative max concurrent sessions", ErrConfiguration)
	}
	if c.MaxSessionDuration < 0 {
		return fmt.Errorf("%w: negative max session duration", ErrConfiguration)
	}
	return nil
}

// MergeConstraints combines constraints from multiple granted roles for a
// session snapshot: numeric limits take the most restrictive value,
// RequireMFA is OR'd, and restriction sets are unioned. Per-grant acceptance
// during permission checks does not use the merged form.
func MergeConstraints(sets []*RoleConstraints) RoleConstraints {
	var merged RoleConstraints
	for _, c := range sets {
		if c == nil {
			continue
		}
		merged.TimeWindows = append(merged.TimeWindows, c.TimeWindows...)
		merged.AllowedIPPatterns = appendUnique(merged.AllowedIPPatterns, c.AllowedIPPatterns)
		merged.AllowedDeviceIDs = appendUnique(merged.AllowedDeviceIDs, c.AllowedDeviceIDs)
		if c.MaxConcurrentSessions > 0 &&
			(merged.MaxConcurrentSessions == 0 || c.MaxConcurrentSessions < merged.MaxConcurrentSessions) {
			merged.MaxConcurrentSessions = c.MaxConcurrentSessions
		}
		if c.MaxSessionDuration > 0 &&
			(merged.MaxSessionDuration == 0 || c.MaxSessionDuration < merged.MaxSessionDuration) {
			merged.MaxSessionDuration = c.MaxSessionDuration
		}
		if c.RequireMFA {
			merged.RequireMFA = true
		}
	}
	return merged
}

func appendUnique(dst, src []string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}
