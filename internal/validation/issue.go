// Package validation keeps the per-order compliance issues a technician
// still has to resolve. Issues are recomputed from live state by the caller;
// this package reconciles each fresh set with the persisted one so an
// unresolved problem survives restarts and transient recomputation gaps.
package validation

// Severity classifies how an issue affects order completion.
type Severity string

const (
	// SeverityError blocks order completion outright.
	SeverityError Severity = "error"
	// SeverityWarning requires explicit technician acknowledgment before
	// completion.
	SeverityWarning Severity = "warning"
)

// Issue is one detected incompleteness or compliance gap on an order, such
// as a missing scanned manifest. Screen names where the technician can
// resolve it.
type Issue struct {
	ID          string   `json:"id"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Screen      string   `json:"screen"`
	Description string   `json:"description,omitempty"`
}

// HasBlocking reports whether any issue blocks completion.
func HasBlocking(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

// NeedsAcknowledgment reports whether completion requires the technician to
// acknowledge remaining warnings.
func NeedsAcknowledgment(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityWarning {
			return true
		}
	}
	return false
}
