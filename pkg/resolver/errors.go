package resolver

import (
	"errors"
	"fmt"
)

// ErrInvalidCandidateName is returned when a candidate has an empty base name
// after forbidden characters are removed.
var ErrInvalidCandidateName = errors.New("invalid candidate name")

// BackendQueryError reports a failure of the storage backend behind a View.
// The resolver never retries; callers decide whether the backend is worth
// asking again.
type BackendQueryError struct {
	Op    string // "exists", "list" or "empty"
	Scope Scope
	Err   error
}

func (e *BackendQueryError) Error() string {
	return fmt.Sprintf("backend query %s in scope %q: %v", e.Op, string(e.Scope), e.Err)
}

func (e *BackendQueryError) Unwrap() error {
	return e.Err
}

// wrapQueryError returns err unchanged when it already is a BackendQueryError.
func wrapQueryError(op string, scope Scope, err error) error {
	var qe *BackendQueryError
	if errors.As(err, &qe) {
		return err
	}

	return &BackendQueryError{Op: op, Scope: scope, Err: err}
}
