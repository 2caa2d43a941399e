// Package timetrack records per-service-type working time on an order and
// enforces temporal consistency: times on the service date, end after start,
// no overlap between service types.
package timetrack

import "time"

// Entry is the working-time record for one service type on one order.
// Start and End are independently editable after the fact, subject to
// validation. A completed entry is retained as immutable history.
type Entry struct {
	OrderNumber   string     `json:"order_number"`
	ServiceTypeID string     `json:"service_type_id"`
	Start         *time.Time `json:"start_time,omitempty"`
	End           *time.Time `json:"end_time,omitempty"`
	StartedBy     string     `json:"started_by,omitempty"`
}

// Active reports whether work is in progress: started but not ended.
func (e Entry) Active() bool {
	return e.Start != nil && e.End == nil
}

// Completed reports whether the entry has both timestamps.
func (e Entry) Completed() bool {
	return e.Start != nil && e.End != nil
}

// DurationMinutes derives the whole-minute duration, or nil while the entry
// is incomplete. It is never stored.
func (e Entry) DurationMinutes() *int {
	if !e.Completed() {
		return nil
	}
	m := int(e.End.Sub(*e.Start) / time.Minute)
	return &m
}
