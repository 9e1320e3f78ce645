package report

import "fmt"

// transitions is the complete set of permitted status changes. A report moves
// from draft to submitted to locked; nothing skips a state and nothing moves
// back.
var transitions = map[Status]Status{
	StatusDraft:     StatusSubmitted,
	StatusSubmitted: StatusLocked,
}

// Transition validates a requested status change against the transition
// table.
func Transition(from, to Status) error {
	if next, ok := transitions[from]; ok && next == to {
		return nil
	}
	return fmt.Errorf("cannot move report from %s to %s: %w", from, to, ErrInvalidTransition)
}

// EnsureEditable reports whether entry and metadata mutations are permitted
// in the given state. Only drafts are editable; the error distinguishes the
// submitted and locked cases so callers surface the precise conflict.
func EnsureEditable(status Status) error {
	switch status {
	case StatusDraft:
		return nil
	case StatusSubmitted:
		return ErrReportSubmitted
	case StatusLocked:
		return ErrReportLocked
	default:
		return fmt.Errorf("unknown report status %q", status)
	}
}
