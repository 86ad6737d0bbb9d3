package approval

import (
	"fmt"
	"strings"

	"fitcoach-controlplane/pkg/errutil"
)

var ErrWorkflowNotFound = errutil.NotFound("approval workflow not found", nil)

// InvalidStateTransitionError is returned when a workflow is not pending,
// including when a concurrent reviewer got there first.
type InvalidStateTransitionError struct {
	Current Status
	Target  Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot move approval from %s to %s", e.Current, e.Target)
}

func (e *InvalidStateTransitionError) Status() errutil.CoreStatus {
	return errutil.StatusConflict
}

func (e *InvalidStateTransitionError) Details() []errutil.Detail {
	return []errutil.Detail{
		{Field: "current_status", Message: string(e.Current)},
		{Field: "target_status", Message: string(e.Target)},
	}
}

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Fields []errutil.Detail
	Err    error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, d := range e.Fields {
		msgs = append(msgs, d.Field+": "+d.Message)
	}
	return "invalid approval request: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Status() errutil.CoreStatus {
	return errutil.StatusValidationFailed
}

func (e *ValidationError) Details() []errutil.Detail {
	return e.Fields
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []errutil.Detail{{Field: field, Message: message}}}
}
