package models

import (
	"fmt"
	"strings"
)

// TransportError reports that the model or store could not be reached or did
// not produce a usable completion. It is never retried by the core; callers
// may retry the whole request.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedReplyError reports a model completion from which no valid JSON
// value could be recovered.
type MalformedReplyError struct {
	Raw string
	Err error
}

func (e *MalformedReplyError) Error() string {
	raw := e.Raw
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	return fmt.Sprintf("malformed model reply %q: %v", raw, e.Err)
}

func (e *MalformedReplyError) Unwrap() error {
	return e.Err
}

// ValidationExhaustedError reports that the generate/validate loop hit its
// retry bound without the feedback agent accepting a reply. Guidance holds
// the corrective instruction from each rejected attempt, oldest first.
type ValidationExhaustedError struct {
	Attempts int
	Guidance []string
}

func (e *ValidationExhaustedError) Error() string {
	return fmt.Sprintf("no acceptable reply after %d attempts (guidance: %s)",
		e.Attempts, strings.Join(e.Guidance, "; "))
}
