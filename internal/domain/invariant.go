package domain

import "fmt"

// InvariantError reports a violated state invariant.
type InvariantError struct {
	Name   string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Name, e.Detail)
}
