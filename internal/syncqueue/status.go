package syncqueue

// State is the aggregate queue state. It is recomputed from queue length,
// connectivity and the head operation rather than stored.
type State string

const (
	StateSynced  State = "synced"
	StateSyncing State = "syncing"
	StatePending State = "pending"
	StateOffline State = "offline"
	StateError   State = "error"
)

// Status pairs the derived state with the queue length.
type Status struct {
	State        State
	PendingCount int
}

// statusLocked derives the status. Callers must hold q.mu.
//
// Precedence: offline beats everything; a failed head beats syncing so the
// UI keeps showing the error badge while the retry is pending.
func (q *Queue) statusLocked() Status {
	s := Status{PendingCount: len(q.ops)}
	switch {
	case !q.monitor.Online():
		s.State = StateOffline
	case len(q.ops) > 0 && q.ops[0].LastError != "":
		s.State = StateError
	case q.draining:
		s.State = StateSyncing
	case len(q.ops) > 0:
		s.State = StatePending
	default:
		s.State = StateSynced
	}
	return s
}
