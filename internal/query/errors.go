package query

import (
	"fmt"
)

// QueryError reports a failed call to the flow index engine. Detail carries the
// engine's structured diagnostic body when one was returned.
type QueryError struct {
	Backend string
	Status  int
	Detail  string
	Err     error
}

func (e *QueryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s query failed (status %d): %v", e.Backend, e.Status, e.Err)
	}
	return fmt.Sprintf("%s query failed: %v", e.Backend, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
