package rbac

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// A Wednesday. 14:30 UTC.
var midWeek = time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)

func TestCheckConstraintsNilOrEmpty(t *testing.T) {
	assert.True(t, CheckConstraints(nil, nil, midWeek))
	assert.True(t, CheckConstraints(&RoleConstraints{}, nil, midWeek))
}

func TestCheckConstraintsIPPatterns(t *testing.T) {
	c := &RoleConstraints{AllowedIPPatterns: []string{"10.0.*", "192.168.1.10"}}

	assert.True(t, CheckConstraints(c, &CheckContext{IPAddress: "10.0.3.7"}, midWeek))
	assert.True(t, CheckConstraints(c, &CheckContext{IPAddress: "192.168.1.10"}, midWeek))
	assert.False(t, CheckConstraints(c, &CheckContext{IPAddress: "172.16.0.1"}, midWeek))

	// Fail closed: a defined IP restriction with no IP in context denies.
	assert.False(t, CheckConstraints(c, nil, midWeek))
	assert.False(t, CheckConstraints(c, &CheckContext{DeviceID: "tablet-1"}, midWeek))
}

func TestCheckConstraintsDeviceIDs(t *testing.T) {
	c := &RoleConstraints{AllowedDeviceIDs: []string{"tablet-1", "tablet-2"}}

	assert.True(t, CheckConstraints(c, &CheckContext{DeviceID: "tablet-2"}, midWeek))
	assert.False(t, CheckConstraints(c, &CheckContext{DeviceID: "tablet-9"}, midWeek))
	assert.False(t, CheckConstraints(c, nil, midWeek))
	assert.False(t, CheckConstraints(c, &CheckContext{IPAddress: "10.0.0.1"}, midWeek))
}

func TestCheckConstraintsTimeWindow(t *testing.T) {
	officeHours := &RoleConstraints{
		TimeWindows: []TimeWindow{{
			Days:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			Start: "08:00",
			End:   "18:00",
		}},
	}

	assert.True(t, CheckConstraints(officeHours, nil, midWeek))

	night := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC)
	assert.False(t, CheckConstraints(officeHours, nil, night))

	saturday := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	assert.False(t, CheckConstraints(officeHours, nil, saturday))

	// Bounds are inclusive.
	assert.True(t, CheckConstraints(officeHours, nil, time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)))
	assert.True(t, CheckConstraints(officeHours, nil, time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)))
	assert.False(t, CheckConstraints(officeHours, nil, time.Date(2026, 3, 4, 7, 59, 0, 0, time.UTC)))
	assert.False(t, CheckConstraints(officeHours, nil, time.Date(2026, 3, 4, 18, 1, 0, 0, time.UTC)))
}

func TestCheckConstraintsTimeWindowTimezone(t *testing.T) {
	nyOffice := &RoleConstraints{
		TimeWindows: []TimeWindow{{
			Start:    "09:00",
			End:      "17:00",
			Timezone: "America/New_York",
		}},
	}

	// 14:30 UTC in March is 09:30 in New York: open.
	assert.True(t, CheckConstraints(nyOffice, nil, midWeek))
	// 13:00 UTC is 08:00 in New York: closed.
	assert.False(t, CheckConstraints(nyOffice, nil, time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC)))
}

func TestCheckConstraintsMultipleWindowsORed(t *testing.T) {
	splitShift := &RoleConstraints{
		TimeWindows: []TimeWindow{
			{Start: "08:00", End: "12:00"},
			{Start: "14:00", End: "18:00"},
		},
	}
	assert.True(t, CheckConstraints(splitShift, nil, time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)))
	assert.False(t, CheckConstraints(splitShift, nil, time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC)))
	assert.True(t, CheckConstraints(splitShift, nil, time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)))
}

func TestValidateConstraints(t *testing.T) {
	assert.NoError(t, ValidateConstraints(nil))
	assert.NoError(t, ValidateConstraints(&RoleConstraints{
		TimeWindows:           []TimeWindow{{Start: "08:00", End: "18:00", Timezone: "Europe/Berlin"}},
		MaxConcurrentSessions: 3,
		MaxSessionDuration:    4 * time.Hour,
	}))

	bad := []*RoleConstraints{
		{TimeWindows: []TimeWindow{{Start: "8am", End: "18:00"}}},
		{TimeWindows: []TimeWindow{{Start: "08:00", End: "25:00"}}},
		{TimeWindows: []TimeWindow{{Start: "08:00", End: "18:00", Timezone: "Mars/Olympus"}}},
		{MaxConcurrentSessions: -1},
		{MaxSessionDuration: -time.Hour},
	}
	for i, c := range bad {
		assert.ErrorIs(t, ValidateConstraints(c), ErrConfiguration, "case %d", i)
	}
}

func TestMergeConstraints(t *testing.T) {
	merged := MergeConstraints([]*RoleConstraints{
		nil,
		{
			AllowedIPPatterns:     []string{"10.0.*"},
			MaxConcurrentSessions: 5,
			MaxSessionDuration:    8 * time.Hour,
		},
		{
			AllowedIPPatterns:     []string{"10.0.*", "192.168.*"},
			MaxConcurrentSessions: 2,
			MaxSessionDuration:    4 * time.Hour,
			RequireMFA:            true,
		},
	})

	assert.Equal(t, []string{"10.0.*", "192.168.*"}, merged.AllowedIPPatterns)
	assert.Equal(t, 2, merged.MaxConcurrentSessions)
	assert.Equal(t, 4*time.Hour, merged.MaxSessionDuration)
	assert.True(t, merged.RequireMFA)
}

func TestContextSensitive(t *testing.T) {
	var unset *RoleConstraints
	assert.False(t, unset.ContextSensitive())
	assert.False(t, (&RoleConstraints{MaxConcurrentSessions: 2, RequireMFA: true}).ContextSensitive())

	assert.True(t, (&RoleConstraints{AllowedIPPatterns: []string{"10.0.*"}}).ContextSensitive())
	assert.True(t, (&RoleConstraints{AllowedDeviceIDs: []string{"tablet-1"}}).ContextSensitive())
	assert.True(t, (&RoleConstraints{TimeWindows: []TimeWindow{{Start: "08:00", End: "18:00"}}}).ContextSensitive())
}
