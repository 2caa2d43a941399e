package timetrack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tm(t *testing.T, hour, min int) *time.Time {
	t.Helper()
	v := time.Date(2024, 5, 14, hour, min, 0, 0, time.UTC)
	return &v
}

var serviceDate = time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)

func TestValidate_AcceptsPlainInterval(t *testing.T) {
	r := Validate(tm(t, 10, 0), tm(t, 11, 30), serviceDate, nil)
	assert.True(t, r.Valid)
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
}

func TestValidate_EndMustBeAfterStart(t *testing.T) {
	r := Validate(tm(t, 11, 0), tm(t, 10, 0), serviceDate, nil)
	require.False(t, r.Valid)
	assert.Contains(t, r.Errors[0], "after start")

	// equal timestamps are rejected too
	r = Validate(tm(t, 10, 0), tm(t, 10, 0), serviceDate, nil)
	assert.False(t, r.Valid)
}

func TestValidate_TimesMustFallOnServiceDate(t *testing.T) {
	nextDay := time.Date(2024, 5, 15, 1, 0, 0, 0, time.UTC)
	r := Validate(tm(t, 22, 0), &nextDay, serviceDate, nil)
	require.False(t, r.Valid)
	assert.Contains(t, r.Errors[0], "service date")
}

func TestValidate_OverlapIsRejected(t *testing.T) {
	others := []Entry{{
		OrderNumber:   "A-1",
		ServiceTypeID: "collection",
		Start:         tm(t, 10, 30),
		End:           tm(t, 10, 45),
	}}

	r := Validate(tm(t, 10, 0), tm(t, 11, 0), serviceDate, others)
	require.False(t, r.Valid)
	assert.Contains(t, r.Errors[0], "overlaps service type collection")
}

func TestValidate_TouchingIntervalsDoNotOverlap(t *testing.T) {
	others := []Entry{{
		ServiceTypeID: "collection",
		Start:         tm(t, 9, 0),
		End:           tm(t, 10, 0),
	}}

	r := Validate(tm(t, 10, 0), tm(t, 11, 0), serviceDate, others)
	assert.True(t, r.Valid)
}

func TestValidate_ActiveSiblingIsIgnored(t *testing.T) {
	// an entry without an end has no interval to collide with
	others := []Entry{{ServiceTypeID: "collection", Start: tm(t, 10, 15)}}

	r := Validate(tm(t, 10, 0), tm(t, 11, 0), serviceDate, others)
	assert.True(t, r.Valid)
}

func TestValidate_DurationWarnings(t *testing.T) {
	end := tm(t, 10, 0).Add(30 * time.Second)
	short := Validate(tm(t, 10, 0), &end, serviceDate, nil)
	require.True(t, short.Valid)
	require.Len(t, short.Warnings, 1)
	assert.Contains(t, short.Warnings[0], "shorter than one minute")

	long := Validate(tm(t, 9, 0), tm(t, 17, 30), serviceDate, nil)
	require.True(t, long.Valid)
	require.Len(t, long.Warnings, 1)
	assert.Contains(t, long.Warnings[0], "longer than eight hours")
}

func TestValidate_IncompleteEntry(t *testing.T) {
	// only a start: nothing to compare yet, but the date rule still applies
	r := Validate(tm(t, 10, 0), nil, serviceDate, nil)
	assert.True(t, r.Valid)

	wrongDay := time.Date(2024, 5, 13, 10, 0, 0, 0, time.UTC)
	r = Validate(&wrongDay, nil, serviceDate, nil)
	assert.False(t, r.Valid)
}
